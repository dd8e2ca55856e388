// Package archive guarda o retrato final das corridas encerradas num bucket S3 compatível
// (AWS, MinIO, R2...)
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/race-odds-monitor/pkg/contracts/api"
)

// Config define a conexão com o bucket
type Config struct {
	Endpoint  string // vazio = AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// objectPutter é o subconjunto do cliente S3 usado aqui
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver grava cada corrida finalizada em races/{YYYY-MM-DD}/{id}.json
type S3Archiver struct {
	client objectPutter
	bucket string
	log    *zap.Logger
	now    func() time.Time
}

// NewS3Archiver monta o cliente S3; endpoint customizado usa path-style
func NewS3Archiver(ctx context.Context, cfg Config, log *zap.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		log:    log,
		now:    time.Now,
	}, nil
}

// ObjectKey devolve a chave do objeto da corrida, datada pela largada (ou pelo arquivamento)
func ObjectKey(race api.Race, archivedAt time.Time) string {
	day := archivedAt.UTC()
	if race.StartTime != nil {
		day = race.StartTime.UTC()
	}
	return fmt.Sprintf("races/%s/%d.json", day.Format("2006-01-02"), race.ID)
}

func (a *S3Archiver) ArchiveRace(ctx context.Context, race api.Race) error {
	body, err := json.Marshal(race)
	if err != nil {
		return fmt.Errorf("archive: marshal race %d: %w", race.ID, err)
	}
	key := ObjectKey(race, a.now())
	archiveID := uuid.NewString()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"archive-id": archiveID},
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}
	a.log.Info("race archived", zap.Int64("race_id", race.ID), zap.String("key", key), zap.String("archive_id", archiveID))
	return nil
}

// normaliseEndpoint garante um esquema no endpoint (http quando ausente)
func normaliseEndpoint(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "http://" + endpoint
}
