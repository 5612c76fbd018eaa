package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionUserID(t *testing.T) {
	sm, _ := newSessionManager(t)
	want := uuid.New()

	cases := []struct {
		name    string
		user    *string
		wantID  uuid.UUID
		wantErr error
	}{
		{name: "no session", wantErr: ErrAnonymous},
		{name: "blank user", user: ptr("  "), wantErr: ErrAnonymous},
		{name: "signed in", user: ptr(" " + want.String() + " "), wantID: want},
		{name: "malformed user", user: ptr("admin")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.user != nil {
				sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
				require.NoError(t, err)
				sess.SetUser(*tc.user)
				ctx = ContextWithSession(ctx, sess)
			}
			id, err := SessionUserID(ctx)
			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.wantID != uuid.Nil:
				require.NoError(t, err)
				assert.Equal(t, tc.wantID, id)
			default:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrAnonymous)
				assert.Equal(t, uuid.Nil, id)
			}
		})
	}
}

func ptr(s string) *string { return &s }
