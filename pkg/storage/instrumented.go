package storage

import (
	"context"
	"io"
	"time"
)

// OperationRecorder receives the outcome of every gateway call
type OperationRecorder interface {
	RecordStorageOperation(backend, op string, err error, duration time.Duration)
}

type instrumented struct {
	name     string
	next     Gateway
	recorder OperationRecorder
}

// Instrument reports each call of gw to recorder under the backend name
func Instrument(name string, gw Gateway, recorder OperationRecorder) Gateway {
	if recorder == nil {
		return gw
	}
	return &instrumented{name: name, next: gw, recorder: recorder}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.recorder.RecordStorageOperation(i.name, op, err, time.Since(start))
}

func (i *instrumented) List(ctx context.Context, p string) (entries []Entry, err error) {
	defer func(start time.Time) { i.observe("list", start, err) }(time.Now())
	return i.next.List(ctx, p)
}

func (i *instrumented) Upload(ctx context.Context, p string, r io.Reader) (err error) {
	defer func(start time.Time) { i.observe("upload", start, err) }(time.Now())
	return i.next.Upload(ctx, p, r)
}

func (i *instrumented) Download(ctx context.Context, p string) (rc io.ReadCloser, err error) {
	defer func(start time.Time) { i.observe("download", start, err) }(time.Now())
	return i.next.Download(ctx, p)
}

func (i *instrumented) Delete(ctx context.Context, p string) (err error) {
	defer func(start time.Time) { i.observe("delete", start, err) }(time.Now())
	return i.next.Delete(ctx, p)
}

func (i *instrumented) CreateFolder(ctx context.Context, p string) (err error) {
	defer func(start time.Time) { i.observe("create_folder", start, err) }(time.Now())
	return i.next.CreateFolder(ctx, p)
}
