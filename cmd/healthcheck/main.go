// Command healthcheck asks a running "vidrelay serve" whether it is alive and
// whether its upload scheduler still answers. It exits 0 when both hold.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ericfisherdev/vidrelay/internal/config"
	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

const timeout = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	st, err := check(ctx, &http.Client{Timeout: timeout}, "http://"+dialAddr(cfg.ListenAddr))
	if err != nil {
		fmt.Fprintln(os.Stderr, "unhealthy:", err)
		os.Exit(1)
	}
	fmt.Printf("ok: %d active, %d pending, limit %d\n", st.Active, st.Pending, st.Limit)
}

// check hits the health endpoint, then decodes the queue status. The queue
// handler takes the scheduler lock, so a wedged scheduler times out here.
func check(ctx context.Context, client *http.Client, base string) (model.QueueStatus, error) {
	var st model.QueueStatus

	if err := get(ctx, client, base+"/api/v1/health", nil); err != nil {
		return st, err
	}
	if err := get(ctx, client, base+"/api/v1/queue", &st); err != nil {
		return st, err
	}
	if st.Limit < 0 || (!st.Paused && st.Active > st.Limit) {
		return st, fmt.Errorf("queue reports %d active over limit %d", st.Active, st.Limit)
	}
	return st, nil
}

func get(ctx context.Context, client *http.Client, url string, out any) error {
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
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(fmt.Errorf("GET %s: decode", url), err)
	}
	return nil
}

// dialAddr turns a listen address into one a local client can dial: an
// empty or unspecified host becomes loopback.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
