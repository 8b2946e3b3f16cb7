package components

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/pipeline"
	"go-ml-pipeline/pkg/dataset"
	"go-ml-pipeline/pkg/utils"
)

// Ingestion reads the raw dataset from a local file or http(s) URL, stores
// it and splits it into train and test files.
type Ingestion struct {
	sink   artifacts.Sink
	client *http.Client
	retry  RetryConfig
}

func NewIngestion(sink artifacts.Sink) *Ingestion {
	return &Ingestion{
		sink:   sink,
		client: &http.Client{Timeout: 30 * time.Second},
		retry:  DefaultRetryConfig,
	}
}

// WithHTTPClient replaces the client used for URL sources
func (s *Ingestion) WithHTTPClient(c *http.Client) *Ingestion {
	s.client = c
	return s
}

// WithRetry sets the backoff policy for URL sources
func (s *Ingestion) WithRetry(c RetryConfig) *Ingestion {
	s.retry = c
	return s
}

func (s *Ingestion) Name() string                    { return model.StageIngestion }
func (s *Ingestion) Requires() []pipeline.ArtifactKind { return nil }
func (s *Ingestion) Produces() pipeline.ArtifactKind   { return pipeline.KindIngestion }

func (s *Ingestion) CheckConfig(cfg pipeline.StageConfig) error {
	return checkConfig[model.IngestionConfig](s.Name(), cfg)
}

func (s *Ingestion) Run(ctx context.Context, _ pipeline.Inputs, cfg pipeline.StageConfig) (pipeline.Artifact, error) {
	c, err := pipeline.ConfigAs[model.IngestionConfig](s.Name(), cfg)
	if err != nil {
		return pipeline.Artifact{}, err
	}

	table, err := s.load(ctx, c)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "read"))
	}
	if table.Len() == 0 {
		return pipeline.Artifact{}, pipeline.Wrap(fmt.Errorf("%w: %s has no rows", ErrEmptyDataset, c.Source), pipeline.At(s.Name(), "read"))
	}

	train, test, err := dataset.TrainTestSplit(table, c.TestRatio, c.Seed)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "split"))
	}

	rawPath, err := putTable(ctx, s.sink, s.Name(), FileRaw, table)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "persist"))
	}
	trainPath, err := putTable(ctx, s.sink, s.Name(), FileTrain, train)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "persist"))
	}
	testPath, err := putTable(ctx, s.sink, s.Name(), FileTest, test)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "persist"))
	}

	return pipeline.NewArtifact(pipeline.KindIngestion, pipeline.Values{
		"raw_path":   rawPath,
		"train_path": trainPath,
		"test_path":  testPath,
		"columns":    table.Columns,
		"rows":       table.Len(),
		"train_rows": train.Len(),
		"test_rows":  test.Len(),
	})
}

func (s *Ingestion) load(ctx context.Context, c model.IngestionConfig) (*dataset.Table, error) {
	format, err := sourceFormat(c)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if isURL(c.Source) {
		data, err := s.fetch(ctx, c.Source)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		file, err := os.Open(c.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to open source: %w", err)
		}
		defer file.Close()
		reader = file
	}

	switch format {
	case "json":
		return dataset.ReadJSON(reader)
	default:
		return dataset.ReadCSV(reader)
	}
}

// fetch downloads source, retrying network errors, 429 and 5xx responses
func (s *Ingestion) fetch(ctx context.Context, source string) ([]byte, error) {
	var data []byte
	err := retry(ctx, s.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return permanent(fmt.Errorf("failed to GET %s: %w", source, err))
			}
			return fmt.Errorf("failed to GET %s: %w", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("failed to GET %s: status %s", source, resp.Status)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return permanent(err)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s: %w", source, err)
		}
		return nil
	})
	return data, err
}

func sourceFormat(c model.IngestionConfig) (string, error) {
	if c.Format != "" {
		return strings.ToLower(c.Format), nil
	}
	name := c.Source
	if isURL(c.Source) {
		if u, err := url.Parse(c.Source); err == nil {
			name = u.Path
		}
	}
	switch ft := utils.GetFileType(name); ft {
	case "csv", "json":
		return ft, nil
	default:
		return "", fmt.Errorf("%w: cannot infer format of %q, set format to csv or json", ErrUnsupportedSource, c.Source)
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
