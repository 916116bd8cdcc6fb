package e2e_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/mclink/internal/chat"
	"github.com/mcoot/mclink/internal/factory"
	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/model"
	"github.com/mcoot/mclink/internal/testutil"
)

const (
	pluginSecret = "mck_e2e_plugin"
	staffSecret  = "mck_e2e_staff"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	keyFile    string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(projectRoot, "bin", "mclink-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/mclink")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		keyFile:    filepath.Join(t.TempDir(), "key"),
	}
}

// run executes the CLI with the staff key and the test guild
func (r *cliRunner) run(args ...string) (string, error) {
	return r.runWithKey(staffSecret, args...)
}

func (r *cliRunner) runWithKey(key string, args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--api-key", key,
		"--key-file", r.keyFile,
		"--guild", "g1",
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// testServer manages a real HTTP server for e2e tests
type testServer struct {
	server   *http.Server
	addr     string
	chat     *chat.StaticClient
	shutdown func()
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	// Find a free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	chatClient := chat.NewStaticClient()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	// Create application
	app, err := factory.New(factory.Config{
		Guilds: &guildconfig.Config{
			Guilds: []guildconfig.Guild{{
				ID:              "g1",
				ServerAddresses: []string{"mc.example.com"},
				RoleSync: guildconfig.RoleSync{
					Enabled:  true,
					Mappings: []model.RoleMapping{{RoleID: "vip", Group: "vip-mc", Enabled: true}},
				},
				LeaveRevocation: guildconfig.LeaveRevocation{Enabled: true},
			}},
			APIKeys: []guildconfig.APIKey{
				{Name: "plugin", Hash: testutil.HashKey(t, pluginSecret), Scopes: []model.Scope{model.ScopeConnect}},
				{Name: "bot", Hash: testutil.HashKey(t, staffSecret), Scopes: []model.Scope{model.ScopeStaff}},
			},
		},
		Logger: logger,
		Chat:   chatClient,
	})
	require.NoError(t, err)

	server := &http.Server{
		Addr:    addr,
		Handler: app.Router(logger),
	}

	// Start server
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	// Wait for server to be ready
	serverURL := "http://" + addr
	waitForServer(t, serverURL+"/health")

	return &testServer{
		server: server,
		addr:   serverURL,
		chat:   chatClient,
		shutdown: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
			_ = app.Close()
		},
	}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// Response types for JSON parsing
type healthResponse struct {
	Status string `json:"status"`
}

type authCodeResponse struct {
	AuthID   string `json:"authId"`
	AuthCode string `json:"authCode"`
}

type decisionResponse struct {
	Action              string `json:"action"`
	ShouldBeWhitelisted bool   `json:"shouldBeWhitelisted"`
	KickMessage         string `json:"kickMessage"`
	RoleSync            *struct {
		TargetGroups []string `json:"targetGroups"`
	} `json:"roleSync"`
}

type playerResponse struct {
	ID               string `json:"id"`
	GameUsername     string `json:"gameUsername"`
	Whitelisted      bool   `json:"whitelisted"`
	ApprovedBy       string `json:"approvedBy"`
	RevocationReason string `json:"revocationReason"`
}

type pendingResponse struct {
	Count   int              `json:"count"`
	Players []playerResponse `json:"players"`
}

type bulkResponse struct {
	Approved   int `json:"approved"`
	TotalFound int `json:"totalFound"`
}

type keyResponse struct {
	Secret string `json:"secret"`
	Hash   string `json:"hash"`
}

func decodeOutput[T any](t *testing.T, output string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(output), &v), "output: %s", output)
	return v
}

// linkPlayer drives a player from unknown to awaiting approval and returns the auth id
func linkPlayer(t *testing.T, cli *cliRunner, username, chatUser string) string {
	t.Helper()
	uuid := "uuid-" + username

	output, err := cli.run("link-code", "--username", username, "--uuid", uuid)
	require.NoError(t, err, "output: %s", output)
	issued := decodeOutput[authCodeResponse](t, output)
	require.Len(t, issued.AuthCode, 6)

	output, err = cli.runWithKey(pluginSecret, "attempt", "--username", username, "--uuid", uuid, "--server-ip", "mc.example.com")
	require.NoError(t, err, "output: %s", output)
	shown := decodeOutput[decisionResponse](t, output)
	require.Equal(t, "show_auth_code", shown.Action)
	require.Contains(t, shown.KickMessage, issued.AuthCode)

	output, err = cli.run("confirm", issued.AuthCode, "--user", chatUser, "--username", chatUser)
	require.NoError(t, err, "output: %s", output)

	return issued.AuthID
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("health")
	require.NoError(t, err, "output: %s", output)

	resp := decodeOutput[healthResponse](t, output)
	assert.Equal(t, "ok", resp.Status)
}

func TestCLI_KeyGenerate(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("key", "generate")
	require.NoError(t, err, "output: %s", output)

	resp := decodeOutput[keyResponse](t, output)
	assert.NotEmpty(t, resp.Secret)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(resp.Hash), []byte(resp.Secret)))
}

func TestCLI_Scopes(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.runWithKey(pluginSecret, "pending")
	assert.Error(t, err)
	assert.Contains(t, output, "FORBIDDEN")

	output, err = cli.runWithKey("mck_wrong", "pending")
	assert.Error(t, err)
	assert.Contains(t, output, "UNAUTHORIZED")
}

func TestCLI_LinkAndApprove(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()
	ts.chat.SetMember("g1", chat.Member{UserID: "c1", Username: "alice", Roles: []string{"vip"}})

	cli := newCLIRunner(t, ts.addr)

	// Unknown players are told how to start linking
	output, err := cli.runWithKey(pluginSecret, "attempt", "--username", "Alice", "--uuid", "uuid-Alice", "--server-ip", "mc.example.com")
	require.NoError(t, err, "output: %s", output)
	assert.Equal(t, "start_linking", decodeOutput[decisionResponse](t, output).Action)

	authID := linkPlayer(t, cli, "Alice", "c1")

	output, err = cli.run("pending")
	require.NoError(t, err, "output: %s", output)
	pending := decodeOutput[pendingResponse](t, output)
	require.Equal(t, 1, pending.Count)
	assert.Equal(t, authID, pending.Players[0].ID)

	output, err = cli.run("approve", authID, "--staff", "mod1", "--notes", "known from the forum")
	require.NoError(t, err, "output: %s", output)
	approved := decodeOutput[playerResponse](t, output)
	assert.True(t, approved.Whitelisted)
	assert.Equal(t, "mod1", approved.ApprovedBy)

	output, err = cli.runWithKey(pluginSecret, "attempt", "--username", "Alice", "--uuid", "uuid-Alice")
	require.NoError(t, err, "output: %s", output)
	allowed := decodeOutput[decisionResponse](t, output)
	assert.Equal(t, "allow", allowed.Action)
	assert.True(t, allowed.ShouldBeWhitelisted)
	require.NotNil(t, allowed.RoleSync)
	assert.Equal(t, []string{"vip-mc"}, allowed.RoleSync.TargetGroups)

	// Approving again is a state conflict
	output, err = cli.run("approve", authID)
	assert.Error(t, err)
	assert.Contains(t, output, "INVALID_STATE")
}

func TestCLI_RejectAndBulkApprove(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	first := linkPlayer(t, cli, "alice", "c1")
	linkPlayer(t, cli, "bob", "c2")
	linkPlayer(t, cli, "carol", "c3")

	output, err := cli.run("reject", first, "--reason", "alt account")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.runWithKey(pluginSecret, "attempt", "--username", "alice", "--uuid", "uuid-alice")
	require.NoError(t, err, "output: %s", output)
	rejected := decodeOutput[decisionResponse](t, output)
	assert.Equal(t, "rejected", rejected.Action)
	assert.Contains(t, rejected.KickMessage, "alt account")

	output, err = cli.run("bulk-approve", "5")
	require.NoError(t, err, "output: %s", output)
	bulk := decodeOutput[bulkResponse](t, output)
	assert.Equal(t, 2, bulk.Approved)
	assert.Equal(t, 2, bulk.TotalFound)

	output, err = cli.run("bulk-approve", "51")
	assert.Error(t, err)
	assert.Contains(t, output, "INVALID_REQUEST")
}

func TestCLI_MemberLeaveAndRejoin(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	authID := linkPlayer(t, cli, "alice", "c1")
	output, err := cli.run("approve", authID)
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("member", "leave", "c1")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("player", "show", authID)
	require.NoError(t, err, "output: %s", output)
	revoked := decodeOutput[playerResponse](t, output)
	assert.False(t, revoked.Whitelisted)
	assert.Equal(t, "platform_leave", revoked.RevocationReason)

	output, err = cli.run("member", "join", "c1")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("player", "show", authID)
	require.NoError(t, err, "output: %s", output)
	assert.True(t, decodeOutput[playerResponse](t, output).Whitelisted)

	// Staff revocation is not undone by rejoining
	output, err = cli.run("player", "revoke", authID, "--reason", "griefing")
	require.NoError(t, err, "output: %s", output)
	assert.Equal(t, "manual", decodeOutput[playerResponse](t, output).RevocationReason)

	output, err = cli.run("member", "join", "c1")
	require.NoError(t, err, "output: %s", output)
	output, err = cli.run("player", "show", authID)
	require.NoError(t, err, "output: %s", output)
	assert.False(t, decodeOutput[playerResponse](t, output).Whitelisted)
}
