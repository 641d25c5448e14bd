package track

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

const audioFormat = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"

// YtdlpExtractor runs yt-dlp for metadata and for piped playback.
type YtdlpExtractor struct {
	Executable string
	Cookies    string
	Proxy      string
}

func (y *YtdlpExtractor) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()

	if y.Executable != "" {
		cmd.SetExecutable(y.Executable)
	}
	if y.Proxy != "" {
		cmd.Proxy(y.Proxy)
	}
	return cmd
}

func (y *YtdlpExtractor) args(extra ...string) []string {
	args := []string{
		"--no-playlist",
		"--no-check-certificates",
		"--socket-timeout", "15",
		"--retries", "3",
	}
	if y.Cookies != "" {
		args = append(args, "--cookies", y.Cookies)
	}
	return append(args, extra...)
}

// Extract prints one JSON record for query without downloading anything.
func (y *YtdlpExtractor) Extract(ctx context.Context, query string) ([]byte, error) {
	res, err := y.command().
		Format(audioFormat).
		Run(ctx, y.args("--dump-single-json", "--skip-download", query)...)
	if err != nil {
		if res != nil && res.Stderr != "" {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(res.Stderr))
		}
		return nil, err
	}
	return []byte(res.Stdout), nil
}

// Stream starts yt-dlp writing the media for query to stdout.
func (y *YtdlpExtractor) Stream(ctx context.Context, query string) (io.ReadCloser, error) {
	execCmd := y.command().
		Format(audioFormat).
		Output("-").
		NoPart().
		BuildCommand(ctx, y.args(query)...)

	execCmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	stderr := &bytes.Buffer{}
	execCmd.Stderr = stderr

	out, err := execCmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := execCmd.Start(); err != nil {
		return nil, err
	}
	return &processStream{ReadCloser: out, cmd: execCmd, stderr: stderr}, nil
}

type processStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

func (p *processStream) Close() error {
	_ = p.ReadCloser.Close()
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error() + p.stderr.String())
	if strings.Contains(msg, "broken pipe") || strings.Contains(msg, "signal: killed") {
		return nil
	}
	return fmt.Errorf("yt-dlp stream: %w: %s", err, strings.TrimSpace(p.stderr.String()))
}
