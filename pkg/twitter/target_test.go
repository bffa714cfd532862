package twitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Target
		wantErr bool
	}{
		{
			name: "list URL",
			url:  "https://x.com/i/lists/1409181262510690310",
			want: Target{Type: TargetList, ListID: "1409181262510690310"},
		},
		{
			name: "list URL on twitter.com",
			url:  "https://twitter.com/i/lists/42",
			want: Target{Type: TargetList, ListID: "42"},
		},
		{
			name: "user profile",
			url:  "https://x.com/jack",
			want: Target{Type: TargetUser, ScreenName: "jack"},
		},
		{
			name: "user profile with at sign",
			url:  "https://x.com/@jack",
			want: Target{Type: TargetUser, ScreenName: "jack"},
		},
		{
			name: "user profile with replies tab",
			url:  "https://x.com/jack/with_replies",
			want: Target{Type: TargetUser, ScreenName: "jack"},
		},
		{
			name: "status URL",
			url:  "https://x.com/jack/status/20",
			want: Target{Type: TargetConversation, ConversationID: "20"},
		},
		{
			name: "anonymous status URL",
			url:  "https://x.com/i/status/20",
			want: Target{Type: TargetConversation, ConversationID: "20"},
		},
		{
			name:    "reserved path is not a user",
			url:     "https://x.com/settings",
			wantErr: true,
		},
		{
			name:    "home is not a user",
			url:     "https://x.com/home",
			wantErr: true,
		},
		{
			name:    "unsupported domain",
			url:     "https://example.com/jack",
			wantErr: true,
		},
		{
			name:    "doubly nested path",
			url:     "https://x.com/jack/followers",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Type, got.Type)
			assert.Equal(t, tt.want.ListID, got.ListID)
			assert.Equal(t, tt.want.ScreenName, got.ScreenName)
			assert.Equal(t, tt.want.ConversationID, got.ConversationID)
			assert.Equal(t, tt.url, got.URL)
		})
	}
}

func TestTargetKey(t *testing.T) {
	assert.Equal(t, "list:123", ListTarget("123").Key())
	assert.Equal(t, "user:jack", UserTarget("Jack").Key(), "user keys are lowercased")
	assert.Equal(t, "conversation:456", ConversationTarget("456").Key())
}
