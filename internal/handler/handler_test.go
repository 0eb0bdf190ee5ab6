// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

package handler

import (
	"context"
	"testing"

	"github.com/tomtom215/cropstream/internal/registry"
)

type countingDispatcher struct {
	errors int
	calls  int
}

func (d *countingDispatcher) Process(context.Context, []byte) registry.Result {
	d.calls++
	return registry.Result{ErrorCount: d.errors}
}

func TestHandler_Handle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		body      string
		errors    int
		want      Result
		wantCalls int
	}{
		{
			name: "no records key",
			body: `{"Other":[]}`,
			want: Result{Message: MessageFailed},
		},
		{
			name: "not json",
			body: `Records`,
			want: Result{Message: MessageFailed},
		},
		{
			name: "empty batch",
			body: `{"Records":[]}`,
			want: Result{Message: MessageOK},
		},
		{
			name:      "clean records",
			body:      `{"Records":[{"kinesis":{"data":"e30="}},{"kinesis":{"data":"e30="}}]}`,
			want:      Result{Message: MessageOK, RecordsProcessed: 2},
			wantCalls: 2,
		},
		{
			name:      "missing data counts once",
			body:      `{"Records":[{"kinesis":{}},{"eventSource":"x"},{"kinesis":{"data":"e30="}}]}`,
			errors:    2,
			want:      Result{Message: MessageOK, RecordsProcessed: 3, ExceptionCount: 4},
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &countingDispatcher{errors: tt.errors}
			got := New(d).Handle(context.Background(), []byte(tt.body))
			if got != tt.want {
				t.Errorf("Handle() = %+v, want %+v", got, tt.want)
			}
			if d.calls != tt.wantCalls {
				t.Errorf("dispatcher calls = %d, want %d", d.calls, tt.wantCalls)
			}
		})
	}
}

func TestResult_OK(t *testing.T) {
	t.Parallel()
	if !(Result{Message: MessageOK}).OK() {
		t.Error("clean batch must be OK")
	}
	if (Result{Message: MessageOK, ExceptionCount: 1}).OK() || (Result{Message: MessageFailed}).OK() {
		t.Error("batch with errors must not be OK")
	}
}
