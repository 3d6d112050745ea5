// Package auditexport ships audit rows to object storage as JSON lines so
// corrections stay reviewable after the database is pruned.
package auditexport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TableFox/app/repository"
	"github.com/ManuelReschke/TableFox/internal/pkg/apperr"
)

const pageSize = 500

// ObjectPutter is the one S3 call the exporter makes.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Result describes one uploaded export object.
type Result struct {
	Bucket string    `json:"bucket"`
	Key    string    `json:"key"`
	Rows   int       `json:"rows"`
	Bytes  int       `json:"bytes"`
	Since  time.Time `json:"since"`
	Until  time.Time `json:"until"`
}

type Exporter struct {
	audits repository.AuditRepository
	s3     ObjectPutter
	bucket string
	prefix string
}

func NewExporter(audits repository.AuditRepository, client ObjectPutter, bucket, prefix string) *Exporter {
	return &Exporter{audits: audits, s3: client, bucket: bucket, prefix: prefix}
}

// ObjectKey is prefix/YYYY/MM/DD/audit-<since>-<until>.jsonl, dated by since.
func (e *Exporter) ObjectKey(since, until time.Time) string {
	since, until = since.UTC(), until.UTC()
	name := fmt.Sprintf("audit-%s-%s.jsonl", since.Format("20060102T150405Z"), until.Format("20060102T150405Z"))
	return path.Join(e.prefix, since.Format("2006/01/02"), name)
}

// Export uploads every audit row created in [since, until) as one object.
// An empty window still produces an (empty) object so the run is visible.
func (e *Exporter) Export(ctx context.Context, since, until time.Time) (*Result, error) {
	if !since.Before(until) {
		return nil, apperr.Validation("invalid_window", "since must be before until")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	rows := 0
	for offset := 0; ; offset += pageSize {
		page, err := e.audits.ListBetween(ctx, since, until, offset, pageSize)
		if err != nil {
			return nil, apperr.Upstream("audit_store_unavailable", err)
		}
		for i := range page {
			if err := enc.Encode(&page[i]); err != nil {
				return nil, fmt.Errorf("encode audit row %d: %w", page[i].ID, err)
			}
		}
		rows += len(page)
		if len(page) < pageSize {
			break
		}
	}

	key := e.ObjectKey(since, until)
	size := buf.Len()
	_, err := e.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String("application/x-ndjson"),
		ContentLength: aws.Int64(int64(size)),
		Metadata: map[string]string{
			"rows":          fmt.Sprintf("%d", rows),
			"upload-source": "tablefox-audit-export",
		},
	})
	if err != nil {
		return nil, apperr.Upstream("audit_export_failed", err)
	}

	log.Infof("[AuditExport] Uploaded %d audit rows to s3://%s/%s", rows, e.bucket, key)
	return &Result{Bucket: e.bucket, Key: key, Rows: rows, Bytes: size, Since: since, Until: until}, nil
}
