package web

import (
	"testing"

	"virtual-tryon-service/internal/domain/model"
)

func TestNormalizeWebhook(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    model.Signal
		wantErr bool
	}{
		{
			name: "canonical success",
			body: `{"job_id":"j1","status":"completed","result_image_url":"https://cdn/r.jpg"}`,
			want: model.Signal{JobID: "j1", Outcome: model.SignalSuccess, ResultImageURL: "https://cdn/r.jpg"},
		},
		{
			name: "pixazo output_img_url with state",
			body: `{"id":"j2","state":"succeeded","output_img_url":"https://cdn/out.png"}`,
			want: model.Signal{JobID: "j2", Outcome: model.SignalSuccess, ResultImageURL: "https://cdn/out.png"},
		},
		{
			name: "bare result url implies success",
			body: `{"task_id":"j3","result":"https://cdn/r.jpg"}`,
			want: model.Signal{JobID: "j3", Outcome: model.SignalSuccess, ResultImageURL: "https://cdn/r.jpg"},
		},
		{
			name: "failure with message alias",
			body: `{"jobId":"j4","status":"failed","message":"gpu pool exhausted"}`,
			want: model.Signal{JobID: "j4", Outcome: model.SignalFailure, ErrorMessage: "gpu pool exhausted"},
		},
		{
			name: "numeric status code failure",
			body: `{"job_id":"j5","status_code":500,"error":"internal"}`,
			want: model.Signal{JobID: "j5", Outcome: model.SignalFailure, ErrorMessage: "internal"},
		},
		{
			name: "numeric status code success",
			body: `{"job_id":"j6","status_code":200,"result_url":"https://cdn/r.jpg"}`,
			want: model.Signal{JobID: "j6", Outcome: model.SignalSuccess, ResultImageURL: "https://cdn/r.jpg"},
		},
		{
			name: "progress heartbeat",
			body: `{"job_id":"j7","status":"in_progress","progress":73}`,
			want: model.Signal{JobID: "j7", Outcome: model.SignalStillRunning, Progress: 73},
		},
		{
			name: "session id passthrough",
			body: `{"session_id":"s1","status":"processing"}`,
			want: model.Signal{SessionID: "s1", Outcome: model.SignalStillRunning},
		},
		{
			name: "unknown shape defaults to still running",
			body: `{"foo":"bar"}`,
			want: model.Signal{Outcome: model.SignalStillRunning},
		},
		{
			name:    "not json",
			body:    `<xml>nope</xml>`,
			wantErr: true,
		},
		{
			name:    "json but not an object",
			body:    `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeWebhook([]byte(tc.body))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeWebhook: %v", err)
			}
			tc.want.Source = model.SignalSourceWebhook
			if got != tc.want {
				t.Errorf("got %+v\nwant %+v", got, tc.want)
			}
		})
	}
}

func TestOutcomeFromWordCasing(t *testing.T) {
	if o, ok := outcomeFromWord("  Completed "); !ok || o != model.SignalSuccess {
		t.Errorf("Completed -> (%s, %v)", o, ok)
	}
	if o, ok := outcomeFromWord("FAILED"); !ok || o != model.SignalFailure {
		t.Errorf("FAILED -> (%s, %v)", o, ok)
	}
	if _, ok := outcomeFromWord("sideways"); ok {
		t.Error("unknown word should not be recognized")
	}
}
