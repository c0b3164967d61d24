// Package archive uploads the final results of completed sessions to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
)

// ObjectPutter is the part of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client uses static credentials when both keys are set, the default chain otherwise.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.Region),
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg), nil
}

type Config struct {
	Client ObjectPutter
	Bucket string
	Prefix string
	Logger *zap.Logger
}

type Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	log    *zap.Logger
}

func New(c Config) *Archiver {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Archiver{
		client: c.Client,
		bucket: c.Bucket,
		prefix: c.Prefix,
		log:    c.Logger,
	}
}

// Subscribe archives every session on completion.
func (a *Archiver) Subscribe(eb *event.Bus) {
	eb.Subscribe(domain.EventNameSessionCompleted, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventSessionCompleted)
		return a.Archive(ctx, ev.Session, ev.Forced)
	})
}

// Results is the archived document.
type Results struct {
	SessionID   string                                    `json:"sessionId"`
	SessionCode string                                    `json:"sessionCode"`
	QuizID      string                                    `json:"quizId"`
	QuizTitle   string                                    `json:"quizTitle"`
	HostUserID  string                                    `json:"hostUserId"`
	Settings    domain.Settings                           `json:"settings"`
	Questions   []domain.Question                         `json:"questions"`
	CreatedAt   time.Time                                 `json:"createdAt"`
	StartedAt   *time.Time                                `json:"startedAt,omitempty"`
	CompletedAt *time.Time                                `json:"completedAt,omitempty"`
	Forced      bool                                      `json:"forced"`
	Leaderboard []domain.LeaderboardEntry                 `json:"leaderboard"`
	Stats       domain.SessionStats                       `json:"stats"`
	Answers     map[string]map[string]domain.AnswerRecord `json:"answers"`
}

func (a *Archiver) Archive(ctx context.Context, s *domain.Session, forced bool) error {
	res := Results{
		SessionID:   s.SessionID,
		SessionCode: s.SessionCode,
		QuizID:      s.QuizID,
		QuizTitle:   s.QuizTitle,
		HostUserID:  s.HostUserID,
		Settings:    s.Settings,
		Questions:   s.Questions,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
		Forced:      forced,
		Leaderboard: leaderboard.Build(s).Entries,
		Stats:       leaderboard.Stats(s),
		Answers:     make(map[string]map[string]domain.AnswerRecord, len(s.Participants)),
	}
	for id, p := range s.Participants {
		res.Answers[id] = p.Answers
	}

	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("archive: marshal results: %w", err)
	}

	key := Key(a.prefix, s)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}

	a.log.Info("archive: results uploaded",
		zap.String("code", s.SessionCode),
		zap.String("bucket", a.bucket),
		zap.String("key", key),
	)
	return nil
}

// Key is <prefix>/<yyyy-mm-dd>/<sessionId>.json, dated by completion.
func Key(prefix string, s *domain.Session) string {
	day := s.CreatedAt
	if s.CompletedAt != nil {
		day = *s.CompletedAt
	}

	return path.Join(prefix, day.UTC().Format(time.DateOnly), s.SessionID+".json")
}
