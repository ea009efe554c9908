package store

import (
	"context"
	"fmt"
	"net/http"
)

// FirmRepository covers the one firm-side operation this worker performs:
// overwriting the monthly usage counter after a committed batch.
type FirmRepository interface {
	SetMonthlyUsage(ctx context.Context, firmID int64, used int) error
}

type firmRepository struct {
	client *Client
}

func NewFirmRepository(client *Client) FirmRepository {
	return &firmRepository{client: client}
}

func (r *firmRepository) SetMonthlyUsage(ctx context.Context, firmID int64, used int) error {
	path := fmt.Sprintf("/rest/v1/firms?id=eq.%d", firmID)
	body := map[string]int{"used_this_month": used}
	_, _, _, err := r.client.do(ctx, http.MethodPatch, path, body, nil)
	if err != nil {
		return fmt.Errorf("set usage for firm %d: %w", firmID, err)
	}
	return nil
}
