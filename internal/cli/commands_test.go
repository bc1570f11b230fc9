package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evolve/internal/engine"
	"github.com/roach88/evolve/internal/remote"
)

const testPassword = "pikachu"

// response is CLIResponse with a typed payload.
type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

// env is one device: its own local save, optionally sharing a remote
// store with other devices.
type env struct {
	t      *testing.T
	config string
}

// newEnv writes a config for a device whose local store lives in dir.
// remotePath may be empty to run without remote features.
func newEnv(t *testing.T, dir, remotePath string, extra ...string) *env {
	t.Helper()
	content := fmt.Sprintf(`log_level: error
storage:
  local_path: %q
  remote_path: %q
balance:
  base_crit_chance: 0
`, filepath.Join(dir, "evolve.db"), remotePath)
	content += strings.Join(extra, "\n")

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return &env{t: t, config: path}
}

// run executes the CLI with stdin and returns stdout and the error.
func (e *env) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// result runs a command with --format json and decodes an engine.Result.
func (e *env) result(args ...string) response[engine.Result] {
	e.t.Helper()
	out, err := e.run("", append([]string{"--format", "json"}, args...)...)
	require.NoError(e.t, err, out)
	var resp response[engine.Result]
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func (e *env) status() StatusView {
	e.t.Helper()
	out, err := e.run("", "--format", "json", "status")
	require.NoError(e.t, err, out)
	var resp response[StatusView]
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Data
}

// failure runs a command expected to fail and returns its error envelope
// and exit code.
func (e *env) failure(args ...string) (*CLIError, int) {
	e.t.Helper()
	out, err := e.run("", append([]string{"--format", "json"}, args...)...)
	require.Error(e.t, err, out)
	var resp response[json.RawMessage]
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(e.t, "error", resp.Status)
	require.NotNil(e.t, resp.Error)
	return resp.Error, GetExitCode(err)
}

func TestClick_ProgressIsSaved(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	resp := e.result("click", "3")
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3.0, resp.Data.Outcome.CurrencyDelta)
	assert.Equal(t, 3.0, resp.Data.State.Currency)

	resp = e.result("click")
	assert.Equal(t, 4.0, resp.Data.State.Currency)

	view := e.status()
	assert.Equal(t, 4.0, view.State.Currency)
	assert.Equal(t, "Eevee", view.Species)
	assert.Equal(t, 1, view.State.CharacterLevel)
	assert.Nil(t, view.Identity)
}

func TestClick_Text(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	out, err := e.run("", "click", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "+2 energy, +2 exp")
	assert.Contains(t, out, "Energy 2  Lv 1")
}

func TestClick_InvalidTimes(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	cliErr, code := e.failure("click", "many")
	assert.Equal(t, ErrCodeInvalid, cliErr.Code)
	assert.Equal(t, ExitCommandError, code)
}

func TestBuy_InsufficientFunds(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	cliErr, code := e.failure("buy", "stronger_click")
	assert.Equal(t, ErrCodeRejected, cliErr.Code)
	assert.Contains(t, cliErr.Message, "insufficient_funds")
	assert.Equal(t, ExitFailure, code)
}

func TestBuy_UnknownUpgrade(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	cliErr, code := e.failure("buy", "master_ball")
	assert.Equal(t, ErrCodeInvalid, cliErr.Code)
	assert.Equal(t, ExitCommandError, code)
}

func TestCustomCatalog(t *testing.T) {
	dir := t.TempDir()
	catalogDir := filepath.Join(dir, "catalog")
	require.NoError(t, os.Mkdir(catalogDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(catalogDir, "catalog.cue"), []byte(`
package catalog

startingSpecies: "egg"
species: {
	egg: {name: "Egg", evolvesTo: "chick", evolutionLevel: 2, evolutionStage: 1}
	chick: {name: "Chick", evolutionLevel: 3, evolutionStage: 2}
}
upgrades: tap: {title: "Tap", baseCost: 10, effect: {type: "add_to_click", value: 2}}
`), 0o644))
	e := newEnv(t, dir, "", fmt.Sprintf("catalog_dir: %q", catalogDir))

	e.result("click", "10")
	resp := e.result("buy", "tap")
	assert.Equal(t, 10.0, resp.Data.Outcome.Cost)
	assert.Equal(t, 3.0, resp.Data.State.YieldPerAction)

	view := e.status()
	assert.Equal(t, "Egg", view.Species)
	require.Len(t, view.Upgrades, 1)
	assert.Equal(t, UpgradeView{ID: "tap", Title: "Tap", Level: 1, Cost: 11, Affordable: false}, view.Upgrades[0])
}

func TestStatus_Text(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")
	e.result("click", "5")

	out, err := e.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Eevee")
	assert.Contains(t, out, "Lv 1")
	assert.Contains(t, out, "Energy")
	assert.Contains(t, out, "local only")
	assert.Contains(t, out, "stronger_click")
}

func TestSettings(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	out, err := e.run("", "settings", "--sound=false")
	require.NoError(t, err)
	assert.Contains(t, out, "sound: off")
	assert.Contains(t, out, "vibration: on")

	// Unchanged flags keep their saved value.
	out, err = e.run("", "settings", "--vibration=false")
	require.NoError(t, err)
	assert.Contains(t, out, "sound: off")
	assert.Contains(t, out, "vibration: off")
}

func TestMinigame_NotUnlocked(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	cliErr, code := e.failure("minigame", "start")
	assert.Equal(t, ErrCodeRejected, cliErr.Code)
	assert.Equal(t, ExitFailure, code)
}

func TestMinigame_InvalidReward(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	cliErr, code := e.failure("minigame", "complete", "--reward", "{not json")
	assert.Equal(t, ErrCodeInvalid, cliErr.Code)
	assert.Equal(t, ExitCommandError, code)
}

func TestReset(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")
	e.result("click", "5")

	cliErr, code := e.failure("reset")
	assert.Equal(t, ErrCodeInvalid, cliErr.Code)
	assert.Equal(t, ExitCommandError, code)
	assert.Equal(t, 5.0, e.status().State.Currency)

	resp := e.result("reset", "--yes")
	assert.Zero(t, resp.Data.State.Currency)
	assert.Zero(t, e.status().State.Currency)
}

func TestAccountsWithoutRemote(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	cliErr, code := e.failure("login", "--email", "ash@example.com", "--password", testPassword)
	assert.Equal(t, ErrCodeNoRemote, cliErr.Code)
	assert.Equal(t, ExitCommandError, code)

	cliErr, code = e.failure("leaderboard")
	assert.Equal(t, ErrCodeNoRemote, cliErr.Code)
	assert.Equal(t, ExitCommandError, code)
}

func TestLogin_WrongPassword(t *testing.T) {
	dir := t.TempDir()
	e := newEnv(t, dir, filepath.Join(dir, "cloud.db"))

	_, err := e.run("", "signup", "--email", "ash@example.com", "--password", testPassword)
	require.NoError(t, err)

	cliErr, code := e.failure("login", "--email", "ash@example.com", "--password", "wrong")
	assert.Equal(t, ErrCodeAuth, cliErr.Code)
	assert.Equal(t, ExitFailure, code)
}

func TestSignUp_PasswordFromStdin(t *testing.T) {
	dir := t.TempDir()
	e := newEnv(t, dir, filepath.Join(dir, "cloud.db"))

	out, err := e.run(testPassword+"\n", "signup", "--email", "misty@example.com", "--nickname", "Misty")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Signed in as Misty (misty@example.com)")

	out, err = e.run("", "logout")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Signed out")

	out, err = e.run(testPassword+"\n", "login", "--email", "misty@example.com")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Signed in as Misty")
}

func TestSync_ConflictAcrossDevices(t *testing.T) {
	root := t.TempDir()
	cloudPath := filepath.Join(root, "cloud.db")
	phoneDir := filepath.Join(root, "phone")
	tabletDir := filepath.Join(root, "tablet")
	require.NoError(t, os.Mkdir(phoneDir, 0o755))
	require.NoError(t, os.Mkdir(tabletDir, 0o755))
	phone := newEnv(t, phoneDir, cloudPath)
	tablet := newEnv(t, tabletDir, cloudPath)

	// The phone signs up; its progress is pushed when each run exits.
	out, err := phone.run("", "signup", "--email", "ash@example.com", "--password", testPassword, "--nickname", "Ash")
	require.NoError(t, err, out)
	phone.result("click", "5")
	view := phone.status()
	require.NotNil(t, view.Identity)
	assert.True(t, view.Sync.Enabled)
	assert.False(t, view.Sync.Blocked)

	// The tablet played offline, then signs in to the same account.
	tablet.result("click", "2")
	out, err = tablet.run("", "login", "--email", "ash@example.com", "--password", testPassword)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Save conflict")

	// The conflict is detected again on the next run and blocks play.
	cliErr, code := tablet.failure("click")
	assert.Equal(t, ErrCodeBlocked, cliErr.Code)
	assert.Equal(t, ExitFailure, code)

	view = tablet.status()
	assert.True(t, view.Sync.Blocked)
	assert.Equal(t, 2.0, view.State.Currency)

	out, err = tablet.run("", "resolve", "cloud")
	require.NoError(t, err, out)

	view = tablet.status()
	assert.False(t, view.Sync.Blocked)
	assert.True(t, view.Sync.Enabled)
	assert.Equal(t, 5.0, view.State.Currency)

	// The tablet's next push moves the cloud save past the phone's copy,
	// so the phone now sees a conflict of its own.
	tablet.result("click")
	view = phone.status()
	assert.True(t, view.Sync.Blocked)
	assert.Equal(t, 5.0, view.State.Currency)

	cliErr, code = tablet.failure("resolve", "local")
	assert.Equal(t, ErrCodeRejected, cliErr.Code)
	assert.Equal(t, ExitFailure, code)
}

func TestLeaderboard(t *testing.T) {
	root := t.TempDir()
	cloudPath := filepath.Join(root, "cloud.db")
	for i, nick := range []string{"Ash", "Misty"} {
		dir := filepath.Join(root, nick)
		require.NoError(t, os.Mkdir(dir, 0o755))
		e := newEnv(t, dir, cloudPath)
		email := strings.ToLower(nick) + "@example.com"
		_, err := e.run("", "signup", "--email", email, "--password", testPassword, "--nickname", nick)
		require.NoError(t, err)
		e.result("click", fmt.Sprint(3*(i+1)))
	}

	e := newEnv(t, root, cloudPath)
	out, err := e.run("", "--format", "json", "leaderboard")
	require.NoError(t, err, out)
	var resp response[[]remote.Entry]
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "Misty", resp.Data[0].Nickname)
	assert.Equal(t, 6.0, resp.Data[0].Energy)
	assert.Equal(t, 1, resp.Data[0].Rank)
	assert.Equal(t, "Ash", resp.Data[1].Nickname)

	out, err = e.run("", "leaderboard", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Misty")
	assert.NotContains(t, out, "Ash")
}

func TestPlay_ReadsActionsFromStdin(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	out, err := e.run("tap\n\nclick 3\nbuy master_ball\nstatus\nquit\n", "play")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Playing.")
	assert.Contains(t, out, "Error [E005]")
	assert.Contains(t, out, "Eevee")
	assert.Contains(t, out, "Game saved.")

	assert.Equal(t, 5.0, e.status().State.Currency)
}

func TestParsePlayLine(t *testing.T) {
	tests := []struct {
		line string
		want engine.Command
	}{
		{"", engine.Click{Times: 1}},
		{"tap", engine.Click{Times: 1}},
		{"click 4", engine.Click{Times: 4}},
		{"buy stronger_click", engine.Purchase{UpgradeID: "stronger_click"}},
		{"prestige click_mastery", engine.PurchasePrestige{UpgradeID: "click_mastery"}},
		{"ascend", engine.Ascend{}},
		{"start", engine.StartMinigame{}},
		{"complete", engine.CompleteMinigame{}},
		{"resolve cloud", engine.ResolveConflict{Choice: "cloud"}},
		{"status", engine.Snapshot{}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parsePlayLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := parsePlayLine(`complete {"type":"xp_boost","value":25}`)
	require.NoError(t, err)
	complete, ok := got.(engine.CompleteMinigame)
	require.True(t, ok)
	require.NotNil(t, complete.Reward)
	assert.Equal(t, 25.0, complete.Reward.Value)

	_, err = parsePlayLine("quit")
	assert.ErrorIs(t, err, errQuit)

	for _, bad := range []string{"click 0", "buy", "resolve both", "dance"} {
		_, err := parsePlayLine(bad)
		assert.Error(t, err, bad)
		assert.NotErrorIs(t, err, errQuit, bad)
	}
}

func TestCatalogValidate(t *testing.T) {
	valid := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(valid, "catalog.cue"), []byte(`
package catalog

startingSpecies: "egg"
species: egg: {name: "Egg", evolutionLevel: 1, evolutionStage: 1}
upgrades: tap: {title: "Tap", baseCost: 10, effect: {type: "add_to_click", value: 2}}
`), 0o644))

	dangling := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dangling, "catalog.cue"), []byte(`
package catalog

startingSpecies: "egg"
species: egg: {name: "Egg", evolvesTo: "dragon", evolutionLevel: 2, evolutionStage: 1}
`), 0o644))

	e := newEnv(t, t.TempDir(), "")

	out, err := e.run("", "catalog", "validate", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Catalog valid: 1 species, 1 upgrades")

	out, err = e.run("", "catalog", "validate", dangling)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "dragon")

	out, err = e.run("", "catalog", "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "C002")
}

func TestCatalogList(t *testing.T) {
	e := newEnv(t, t.TempDir(), "")

	out, err := e.run("", "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "eevee")
	assert.Contains(t, out, "evolves to espeon at level 5")
	assert.Contains(t, out, "stronger_click")
}

func TestConfigErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tick_interval: -1s\n"), 0o644))

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", bad, "status"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "Error [E002]")
}
