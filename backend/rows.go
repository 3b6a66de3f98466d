package backend

import (
	"context"
	"fmt"
	"net/url"

	"example.com/puppylog/domain"
)

// SelectProfile fetches the profile row keyed by userID. A missing row maps
// to domain.ErrNotFound, which the synchronizer treats as "profile not
// provisioned yet" rather than a failure.
func (c *Client) SelectProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	path := "/rest/v1/profiles?user_id=eq." + url.QueryEscape(userID)
	headers := map[string]string{
		// Single-object representation: zero rows becomes a 406 instead of
		// an empty array, which statusError folds into ErrNotFound.
		"Accept": "application/vnd.pgrst.object+json",
	}

	var profile domain.Profile
	if err := c.doJSON(ctx, "GET", path, headers, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SelectActivities fetches every activity owned by userID, newest first.
// Ordering is requested from the row store so the local collection starts
// out satisfying its sort invariant.
func (c *Client) SelectActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	path := "/rest/v1/activities?user_id=eq." + url.QueryEscape(userID) + "&order=timestamp.desc"

	var activities []domain.Activity
	if err := c.doJSON(ctx, "GET", path, nil, nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// InsertActivity creates a row. The server assigns id and timestamp; the
// created representation is returned.
func (c *Client) InsertActivity(ctx context.Context, fields domain.NewActivity) (domain.Activity, error) {
	headers := map[string]string{"Prefer": "return=representation"}

	var rows []domain.Activity
	if err := c.doJSON(ctx, "POST", "/rest/v1/activities", headers, fields, &rows); err != nil {
		return domain.Activity{}, err
	}
	if len(rows) != 1 {
		return domain.Activity{}, fmt.Errorf("%w: insert returned %d rows", domain.ErrRemote, len(rows))
	}
	return rows[0], nil
}

// UpdateActivity applies a partial update scoped to (id, userID) and returns
// the updated representation. Matching zero rows maps to ErrNotFound: either
// the id is gone or the row belongs to someone else, and the row store does
// not distinguish the two for us.
func (c *Client) UpdateActivity(ctx context.Context, id, userID string, patch domain.ActivityPatch) (domain.Activity, error) {
	path := "/rest/v1/activities?id=eq." + url.QueryEscape(id) + "&user_id=eq." + url.QueryEscape(userID)
	headers := map[string]string{"Prefer": "return=representation"}

	var rows []domain.Activity
	if err := c.doJSON(ctx, "PATCH", path, headers, patch, &rows); err != nil {
		return domain.Activity{}, err
	}
	if len(rows) == 0 {
		return domain.Activity{}, fmt.Errorf("%w: no activity matched id %s", domain.ErrNotFound, id)
	}
	return rows[0], nil
}

// DeleteActivity removes the row scoped to (id, userID).
func (c *Client) DeleteActivity(ctx context.Context, id, userID string) error {
	path := "/rest/v1/activities?id=eq." + url.QueryEscape(id) + "&user_id=eq." + url.QueryEscape(userID)
	return c.doJSON(ctx, "DELETE", path, nil, nil, nil)
}
