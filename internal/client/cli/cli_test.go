package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/client"
	"github.com/dmitrijs2005/cytoguard/internal/client/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	token      string
	userID     string
	uploaded   []string
	mimes      []string
	analyzed   []string
	ended      int
	cleared    int
	closed     int
	reportIdx  []int
	history    []client.HistoryItem
	report     *client.Report
	analyzeErr error
}

func (f *fakeClient) CreateSession(_ context.Context, userID string) (string, error) {
	f.userID = userID
	f.token = "tok-123"
	return f.token, nil
}

func (f *fakeClient) Upload(_ context.Context, filename, mime string, _ []byte) (*client.StoredFile, error) {
	f.uploaded = append(f.uploaded, filename)
	f.mimes = append(f.mimes, mime)
	return &client.StoredFile{Name: "0123456789abcdef.png.enc", Hash: "ab12", Encrypted: true}, nil
}

func (f *fakeClient) Analyze(_ context.Context, name string) (*client.Diagnosis, error) {
	f.analyzed = append(f.analyzed, name)
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &client.Diagnosis{
		Label:        "Precancerous",
		Confidence:   72.5,
		Timestamp:    time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		ImageName:    "scan.png",
		HistoryIndex: 2,
	}, nil
}

func (f *fakeClient) History(context.Context) ([]client.HistoryItem, error) { return f.history, nil }
func (f *fakeClient) ClearHistory(context.Context) error                    { f.cleared++; return nil }
func (f *fakeClient) EndSession(context.Context) error                      { f.ended++; return nil }
func (f *fakeClient) SetToken(token string)                                 { f.token = token }
func (f *fakeClient) Close() error                                          { f.closed++; return nil }

func (f *fakeClient) Report(_ context.Context, index int) (*client.Report, error) {
	f.reportIdx = append(f.reportIdx, index)
	if f.report != nil {
		return f.report, nil
	}
	return &client.Report{PDF: []byte("%PDF-1.3 test")}, nil
}

func run(t *testing.T, fc *fakeClient, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	var dialed *config.Config
	app := NewApp(func(cfg *config.Config) (Client, error) {
		dialed = cfg
		return fc, nil
	}, &out, 60)
	root := app.NewRootCmd()
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	if dialed != nil {
		assert.NotZero(t, dialed.RequestTimeout)
	}
	return out.String(), err
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...), 0o600))
	return path
}

func TestSessionStart_PrintsToken(t *testing.T) {
	fc := &fakeClient{}
	out, err := run(t, fc, "session", "start", "-u", "dr-lee")
	require.NoError(t, err)
	assert.Equal(t, "tok-123\n", out)
	assert.Equal(t, "dr-lee", fc.userID)
	assert.Equal(t, 1, fc.closed)
}

func TestSessionEnd_UsesTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnvVar, "env-token")
	fc := &fakeClient{}
	out, err := run(t, fc, "session", "end")
	require.NoError(t, err)
	assert.Equal(t, "env-token", fc.token)
	assert.Equal(t, 1, fc.ended)
	assert.Contains(t, out, "Session ended.")
}

func TestTokenFlagBeatsEnv(t *testing.T) {
	t.Setenv(TokenEnvVar, "env-token")
	fc := &fakeClient{}
	_, err := run(t, fc, "history", "--token", "flag-token")
	require.NoError(t, err)
	assert.Equal(t, "flag-token", fc.token)
}

func TestUpload(t *testing.T) {
	fc := &fakeClient{}
	path := writeImage(t, "Scan.PNG")
	out, err := run(t, fc, "upload", path, "-t", "tok")
	require.NoError(t, err)
	assert.Equal(t, []string{"Scan.PNG"}, fc.uploaded)
	assert.Equal(t, []string{"image/png"}, fc.mimes)
	assert.Contains(t, out, "Stored 0123456789abcdef.png.enc")
}

func TestUpload_MissingFile(t *testing.T) {
	_, err := run(t, &fakeClient{}, "upload", filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read image")
}

func TestAnalyze_PrintsGauge(t *testing.T) {
	fc := &fakeClient{}
	out, err := run(t, fc, "analyze", "0123456789abcdef.png.enc")
	require.NoError(t, err)
	assert.Equal(t, []string{"0123456789abcdef.png.enc"}, fc.analyzed)
	assert.Contains(t, out, "Precancerous [")
	assert.Contains(t, out, "72.5%")
	assert.Contains(t, out, "(elevated)")
	assert.Contains(t, out, "Entry: 2")
}

func TestAnalyze_Error(t *testing.T) {
	fc := &fakeClient{analyzeErr: errors.New("model down")}
	_, err := run(t, fc, "analyze", "x.png.enc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model down")
}

func TestHistory(t *testing.T) {
	fc := &fakeClient{}
	out, err := run(t, fc, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No analyses yet.")

	fc.history = []client.HistoryItem{
		{Timestamp: time.Now(), ImageName: "a.png", Diagnosis: "Normal", Confidence: 91.25},
		{Timestamp: time.Now(), ImageName: "b.jpg", Diagnosis: "Cancerous", Confidence: 66},
	}
	out, err = run(t, fc, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "DIAGNOSIS")
	assert.Contains(t, out, "a.png")
	assert.Contains(t, out, "91.2%")
	assert.Contains(t, out, "Cancerous")

	out, err = run(t, fc, "history", "clear")
	require.NoError(t, err)
	assert.Equal(t, 1, fc.cleared)
	assert.Contains(t, out, "History cleared.")
}

func TestReport(t *testing.T) {
	fc := &fakeClient{report: &client.Report{PDF: []byte("%PDF"), Key: "reports/k.pdf", URL: "https://x/k.pdf"}}
	path := filepath.Join(t.TempDir(), "r.pdf")

	out, err := run(t, fc, "report", "-o", path)
	require.NoError(t, err)
	assert.Equal(t, []int{-1}, fc.reportIdx)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	assert.Contains(t, out, "Archived as reports/k.pdf")
	assert.Contains(t, out, "https://x/k.pdf")

	_, err = run(t, fc, "report", "1", "-o", path)
	require.NoError(t, err)
	assert.Equal(t, []int{-1, 1}, fc.reportIdx)
}

func TestReport_DefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	orig := timeNow
	timeNow = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { timeNow = orig })

	_, err := run(t, &fakeClient{}, "report")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "cytoguard_report_20250314_093000.pdf"))
}

func TestReport_BadIndex(t *testing.T) {
	_, err := run(t, &fakeClient{}, "report", "-2")
	require.Error(t, err)
	_, err = run(t, &fakeClient{}, "report", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid index")
}

func TestTriage_FullWorkflow(t *testing.T) {
	fc := &fakeClient{}
	img := writeImage(t, "scan.png")
	pdf := filepath.Join(t.TempDir(), "r.pdf")

	out, err := run(t, fc, "triage", img, "-o", pdf, "--user", "dr-lee")
	require.NoError(t, err)
	assert.Equal(t, "dr-lee", fc.userID)
	assert.Equal(t, []string{"scan.png"}, fc.uploaded)
	assert.Equal(t, []string{"0123456789abcdef.png.enc"}, fc.analyzed)
	assert.Equal(t, []int{2}, fc.reportIdx)
	assert.Equal(t, 1, fc.ended)
	assert.FileExists(t, pdf)
	assert.Contains(t, out, "Report saved to "+pdf)
}

func TestTriage_EndsSessionOnFailure(t *testing.T) {
	fc := &fakeClient{analyzeErr: errors.New("boom")}
	img := writeImage(t, "scan.png")

	_, err := run(t, fc, "triage", img)
	require.Error(t, err)
	assert.Equal(t, 1, fc.ended)
	assert.Empty(t, fc.reportIdx)
}

func TestConfigFileAndAddrFlag(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"server_endpoint_addr":"file:1","user_id":"from-file"}`), 0o600))

	var got *config.Config
	app := NewApp(func(cfg *config.Config) (Client, error) {
		got = cfg
		return &fakeClient{}, nil
	}, &bytes.Buffer{}, 80)
	root := app.NewRootCmd()
	root.SetArgs([]string{"session", "start", "-c", cfgPath, "-a", "flag:2"})
	require.NoError(t, root.Execute())

	require.NotNil(t, got)
	assert.Equal(t, "flag:2", got.ServerEndpointAddr)
	assert.Equal(t, "from-file", got.UserID)
}

func TestDialError(t *testing.T) {
	app := NewApp(func(*config.Config) (Client, error) {
		return nil, errors.New("unreachable")
	}, &bytes.Buffer{}, 80)
	root := app.NewRootCmd()
	root.SetArgs([]string{"history"})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
