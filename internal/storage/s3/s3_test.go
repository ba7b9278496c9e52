package s3

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fruitsalade/mixtape/internal/retry"
)

type httpErr struct{ code int }

func (e httpErr) Error() string       { return fmt.Sprintf("http %d", e.code) }
func (e httpErr) HTTPStatusCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantNotExist  bool
		wantTransient bool
	}{
		{"nil", nil, false, false},
		{"no such key", &types.NoSuchKey{}, true, false},
		{"head not found", &types.NotFound{}, true, false},
		{"404", httpErr{404}, true, false},
		{"throttled", httpErr{429}, false, true},
		{"server error", httpErr{503}, false, true},
		{"forbidden", httpErr{403}, false, false},
		{"plain", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, fs.ErrNotExist) != tt.wantNotExist {
				t.Errorf("not-exist = %v, want %v", !tt.wantNotExist, tt.wantNotExist)
			}
			if retry.IsTransient(got) != tt.wantTransient {
				t.Errorf("transient = %v, want %v", !tt.wantTransient, tt.wantTransient)
			}
		})
	}
}
