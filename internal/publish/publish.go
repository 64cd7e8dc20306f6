// Package publish writes a job's STAC catalog and items to a blob bucket.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/mohammed-shakir/harmony-core/internal/core/observability"
	"github.com/mohammed-shakir/harmony-core/internal/job"
	"github.com/mohammed-shakir/harmony-core/internal/logger"
	"github.com/mohammed-shakir/harmony-core/internal/stac"
	"github.com/mohammed-shakir/harmony-core/internal/stac/doccache"
)

const contentType = "application/json"

// CatalogKey and ItemKey name the objects written for a job. Item keys
// match the relative ./<i> hrefs in the catalog.
func CatalogKey(jobID string) string { return jobID + "/" + stac.CatalogFile }

func ItemKey(jobID string, i int) string { return jobID + "/" + strconv.Itoa(i) }

type Publisher struct {
	bucket *blob.Bucket
	docs   *doccache.Cache
	log    *slog.Logger
}

// Open opens the bucket at url (mem://, file:///path).
func Open(ctx context.Context, url string, docs *doccache.Cache, log *slog.Logger) (*Publisher, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("publish: open bucket %s: %w", url, err)
	}
	return New(b, docs, log), nil
}

func New(bucket *blob.Bucket, docs *doccache.Cache, log *slog.Logger) *Publisher {
	if docs == nil {
		docs = doccache.New(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{bucket: bucket, docs: docs, log: log}
}

// Publish writes the catalog and every item of j and returns the keys in
// write order.
func (p *Publisher) Publish(ctx context.Context, j *job.Job) ([]string, error) {
	r, err := p.docs.Get(j)
	if err != nil {
		return nil, err
	}
	id := j.RequestID()
	ctx = logger.WithComponent(logger.WithJobID(ctx, id), "publish")

	keys := make([]string, 0, len(r.Items)+1)
	if err := p.write(ctx, CatalogKey(id), r.Catalog); err != nil {
		return keys, err
	}
	keys = append(keys, CatalogKey(id))
	for i, it := range r.Items {
		k := ItemKey(id, i)
		if err := p.write(ctx, k, it); err != nil {
			return keys, err
		}
		keys = append(keys, k)
	}
	p.log.InfoContext(ctx, "stac published", "objects", len(keys), "fingerprint", r.Fingerprint)
	return keys, nil
}

func (p *Publisher) write(ctx context.Context, key string, body []byte) error {
	err := p.bucket.WriteAll(ctx, key, body, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		observability.IncPublish("error")
		return fmt.Errorf("publish: write %s: %w", key, err)
	}
	observability.IncPublish("ok")
	return nil
}

func (p *Publisher) Close() error {
	return p.bucket.Close()
}
