package modelhandle

import (
	"context"
	"fmt"
	"net/http"
)

// ProbeHTTP issues a GET against url and fails unless the service answers
// 200. Loaders for remote models use it to verify the service before the
// handle is marked ready.
func ProbeHTTP(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check %s: %s", url, resp.Status)
	}
	return nil
}
