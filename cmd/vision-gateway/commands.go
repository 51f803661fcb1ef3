// ABOUTME: Operator subcommands: token minting, identity management and live inspection
// ABOUTME: Talks to the store directly or to a running gateway over HTTP and gRPC health

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/vision-gateway/internal/auth"
	"github.com/2389/vision-gateway/internal/gateway"
	"github.com/2389/vision-gateway/internal/store"
)

const requestTimeout = 5 * time.Second

func openStore(ctx context.Context) (store.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Database)
}

func runToken(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id to mint a token for")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating verifier: %w", err)
	}

	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := s.GetUser(ctx, *userID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no user %q; create one with: vision-gateway user add --id %s --email EMAIL", *userID, *userID)
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}
	if !user.Active {
		color.New(color.FgYellow).Fprintf(os.Stderr, "warning: user %s is inactive, handshakes will be rejected\n", user.ID)
	}

	token, err := verifier.Generate(user.ID, user.Email, string(user.Tier), *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func runUser(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: vision-gateway user add|enable|disable|list")
	}
	switch args[0] {
	case "add":
		return runUserAdd(ctx, args[1:])
	case "enable":
		return runUserSetActive(ctx, args[1:], true)
	case "disable":
		return runUserSetActive(ctx, args[1:], false)
	case "list":
		return runUserList(ctx)
	default:
		return fmt.Errorf("unknown user command %q", args[0])
	}
}

func runUserAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("user add", flag.ContinueOnError)
	id := fs.String("id", "", "user id (the token subject)")
	email := fs.String("email", "", "user email")
	tier := fs.String("tier", string(store.TierFree), "subscription tier (free, premium, enterprise)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *email == "" {
		return errors.New("--id and --email are required")
	}
	if !store.Tier(*tier).Valid() {
		return fmt.Errorf("invalid tier %q", *tier)
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	now := time.Now().UTC()
	err = s.CreateUser(ctx, &store.User{
		ID:        *id,
		Email:     *email,
		Tier:      store.Tier(*tier),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	color.New(color.FgGreen).Printf("created user %s (%s, %s)\n", *id, *email, *tier)
	return nil
}

func runUserSetActive(ctx context.Context, args []string, active bool) error {
	fs := flag.NewFlagSet("user", flag.ContinueOnError)
	id := fs.String("id", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetUserActive(ctx, *id, active); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Printf("user %s %s\n", *id, state)
	return nil
}

func runUserList(ctx context.Context) error {
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	users, err := s.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	table := newTable(os.Stdout, "ID", "Email", "Tier", "Active", "Created")
	for _, u := range users {
		table.Append([]string{u.ID, u.Email, string(u.Tier), strconv.FormatBool(u.Active), u.CreatedAt.Format(time.RFC3339)})
	}
	table.Render()
	return nil
}

// localAddr turns a listen address into one a local client can dial.
func localAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func getJSON(ctx context.Context, url, token string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	var health gateway.HealthResponse
	url := fmt.Sprintf("http://%s/health", localAddr(cfg.Server.HTTPAddr))
	if err := getJSON(ctx, url, "", &health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	color.New(color.FgGreen).Println(health.Status)
	fmt.Printf("  connections: %d\n", health.ActiveConnections)
	fmt.Printf("  uptime:      %s\n", time.Duration(health.UptimeSeconds)*time.Second)
	if p := health.Process; p != nil {
		fmt.Printf("  pid:         %d\n", p.PID)
		fmt.Printf("  rss:         %.1f MiB\n", float64(p.RSSBytes)/(1<<20))
		fmt.Printf("  goroutines:  %d\n", p.Goroutines)
	}

	if cfg.Server.GRPCAddr == "" {
		return nil
	}
	status, err := checkGRPCHealth(ctx, localAddr(cfg.Server.GRPCAddr))
	if err != nil {
		return fmt.Errorf("grpc health check failed: %w", err)
	}
	fmt.Printf("  grpc:        %s\n", status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("grpc health: %s", status)
	}
	return nil
}

func checkGRPCHealth(ctx context.Context, addr string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: gateway.HealthServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func adminToken(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("VISION_ADMIN_TOKEN"); env != "" {
		return env, nil
	}
	return "", errors.New("an admin token is required: pass --token or set VISION_ADMIN_TOKEN")
}

func runSessions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	tokenFlag := fs.String("token", "", "admin JWT (defaults to $VISION_ADMIN_TOKEN)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	token, err := adminToken(*tokenFlag)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	var resp gateway.SessionsResponse
	url := fmt.Sprintf("http://%s/api/sessions", localAddr(cfg.Server.HTTPAddr))
	if err := getJSON(ctx, url, token, &resp); err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	table := newTable(os.Stdout, "Session", "User", "Tier", "Connected", "Channels", "Dropped")
	for _, s := range resp.Sessions {
		table.Append([]string{
			s.ID,
			s.UserID,
			s.Tier,
			time.Since(s.ConnectedAt).Truncate(time.Second).String(),
			strings.Join(s.Channels, ","),
			strconv.FormatInt(s.Dropped, 10),
		})
	}
	table.Render()
	fmt.Printf("\n%d live session(s)\n", resp.Count)
	return nil
}

func runUsage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ContinueOnError)
	userID := fs.String("user", "", "only count this user's requests")
	since := fs.Duration("since", 0, "only count requests newer than this (e.g. 24h)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var filter store.UsageFilter
	if *userID != "" {
		filter.UserID = userID
	}
	if *since > 0 {
		t := time.Now().UTC().Add(-*since)
		filter.Since = &t
	}

	stats, err := s.GetUsageStats(ctx, filter)
	if err != nil {
		return fmt.Errorf("reading usage: %w", err)
	}

	table := newTable(os.Stdout, "Feature", "Requests", "Failures", "Avg Latency")
	for _, st := range stats {
		table.Append([]string{
			st.Feature,
			strconv.FormatInt(st.Requests, 10),
			strconv.FormatInt(st.Failures, 10),
			fmt.Sprintf("%.0fms", st.AvgLatencyMS),
		})
	}
	table.Render()
	return nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
