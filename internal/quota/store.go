// Package quota reads and writes the per-user free-usage counter stored in
// the identity provider's user metadata. The counter is the only mutable
// quota state; the plan tier itself rides on the access token.
package quota

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// usageKey is the metadata field holding the free-tier counter.
const usageKey = "free_usage"

// adminAPI is the slice of the gotrue admin client the store needs.
type adminAPI interface {
	AdminGetUser(req types.AdminGetUserRequest) (*types.AdminGetUserResponse, error)
	AdminUpdateUser(req types.AdminUpdateUserRequest) (*types.AdminUpdateUserResponse, error)
}

// SupabaseStore implements the pipeline's QuotaStore against the Supabase
// auth admin API. Every call goes to the provider; nothing is cached.
type SupabaseStore struct {
	client adminAPI
}

// extractProjectRef reduces a Supabase URL to its project reference ID.
// From: akrqbuajqkirdekonpzy.supabase.co
// To: akrqbuajqkirdekonpzy
func extractProjectRef(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")

	parts := strings.Split(url, ".")
	return parts[0]
}

// NewSupabaseStore builds a store from the project URL and service role key.
// The service key doubles as the bearer token for admin endpoints.
func NewSupabaseStore(supabaseURL, serviceKey string) *SupabaseStore {
	projectRef := extractProjectRef(supabaseURL)
	client := gotrue.New(projectRef, serviceKey).WithToken(serviceKey)
	return &SupabaseStore{client: client}
}

// Usage returns the stored free-usage counter, defaulting to 0 when the
// field has never been written.
func (s *SupabaseStore) Usage(_ context.Context, userID string) (int, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	resp, err := s.client.AdminGetUser(types.AdminGetUserRequest{UserID: uid})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch user metadata: %w", err)
	}

	raw, ok := resp.UserMetadata[usageKey]
	if !ok || raw == nil {
		return 0, nil
	}

	// JSON numbers decode as float64; tolerate ints for fakes.
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected %s type %T", usageKey, raw)
	}
}

// SetUsage writes the counter back, preserving every other metadata field
// the user carries.
func (s *SupabaseStore) SetUsage(_ context.Context, userID string, usage int) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	resp, err := s.client.AdminGetUser(types.AdminGetUserRequest{UserID: uid})
	if err != nil {
		return fmt.Errorf("failed to fetch user metadata: %w", err)
	}

	metadata := resp.UserMetadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata[usageKey] = usage

	_, err = s.client.AdminUpdateUser(types.AdminUpdateUserRequest{
		UserID:       uid,
		UserMetadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to update user metadata: %w", err)
	}
	return nil
}
