// Package hardware detects host capabilities that influence encoder
// selection: hardware HEVC decode paths exposed by FFmpeg and the logical
// CPU count used for encoder threading.
package hardware

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/logger"
	"github.com/shirou/gopsutil/v4/cpu"
)

// cacheTTL is how long a detection result is reused.
const cacheTTL = 5 * time.Minute

// SoftwareHEVCEncoder is the encoder the writer uses for HEVC output.
const SoftwareHEVCEncoder = "libx265"

// hevcHWAccels are the -hwaccels methods able to decode HEVC.
var hevcHWAccels = map[string]bool{
	"cuda":         true,
	"vaapi":        true,
	"qsv":          true,
	"videotoolbox": true,
	"d3d11va":      true,
	"dxva2":        true,
	"vdpau":        true,
}

// hevcHWDecoders are dedicated hardware HEVC decoders.
var hevcHWDecoders = map[string]bool{
	"hevc_cuvid":      true,
	"hevc_qsv":        true,
	"hevc_v4l2m2m":    true,
	"hevc_mediacodec": true,
	"hevc_rkmpp":      true,
}

// Execer runs a command and returns its combined output.
type Execer interface {
	Run(ctx context.Context, cmd string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, cmd, args...).CombinedOutput()
}

// Info is one detection result.
type Info struct {
	HWAccels     []string  `json:"hwaccels"`
	HEVCDecoders []string  `json:"hevc_decoders"`
	HEVCEncoders []string  `json:"hevc_encoders"`
	HEVCDecode   bool      `json:"hevc_decode"`
	Threads      int       `json:"threads"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Detector probes an FFmpeg binary and caches the result.
type Detector struct {
	ffmpegPath string
	execer     Execer
	logger     hclog.Logger

	mu         sync.Mutex
	info       *Info
	lastDetect time.Time
}

// NewDetector creates a detector for the given binary. A nil execer runs
// real processes.
func NewDetector(ffmpegPath string, execer Execer, log hclog.Logger) *Detector {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if execer == nil {
		execer = execRunner{}
	}
	return &Detector{
		ffmpegPath: ffmpegPath,
		execer:     execer,
		logger:     logger.OrDefault(log).Named("hardware"),
	}
}

// Detect returns the cached result or probes FFmpeg again.
func (d *Detector) Detect(ctx context.Context) (*Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil && time.Since(d.lastDetect) < cacheTTL {
		return d.info, nil
	}

	d.logger.Debug("detecting hardware capabilities", "ffmpeg", d.ffmpegPath)

	info := &Info{Threads: Threads(), DetectedAt: time.Now()}

	out, err := d.execer.Run(ctx, d.ffmpegPath, "-hide_banner", "-hwaccels")
	if err != nil {
		return nil, err
	}
	info.HWAccels = parseHWAccels(out)

	out, err = d.execer.Run(ctx, d.ffmpegPath, "-hide_banner", "-decoders")
	if err != nil {
		return nil, err
	}
	info.HEVCDecoders = filterHEVC(parseCodecTable(out))

	out, err = d.execer.Run(ctx, d.ffmpegPath, "-hide_banner", "-encoders")
	if err != nil {
		return nil, err
	}
	info.HEVCEncoders = filterHEVC(parseCodecTable(out))

	info.HEVCDecode = hasHardwareHEVC(info) && contains(info.HEVCEncoders, SoftwareHEVCEncoder)

	d.logger.Info("hardware capabilities detected",
		"hwaccels", info.HWAccels,
		"hevc_decode", info.HEVCDecode,
		"threads", info.Threads)

	d.info = info
	d.lastDetect = time.Now()
	return info, nil
}

// HEVCDecodeSupported reports whether HEVC output should be produced.
// Detection failures are treated as unsupported.
func (d *Detector) HEVCDecodeSupported(ctx context.Context) bool {
	info, err := d.Detect(ctx)
	if err != nil {
		d.logger.Warn("hardware detection failed, using H.264", "error", err)
		return false
	}
	return info.HEVCDecode
}

// Threads returns the logical CPU count.
func Threads() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

func hasHardwareHEVC(info *Info) bool {
	for _, a := range info.HWAccels {
		if hevcHWAccels[a] {
			return true
		}
	}
	for _, dec := range info.HEVCDecoders {
		if hevcHWDecoders[dec] {
			return true
		}
	}
	return false
}

// parseHWAccels reads the method list printed after the
// "Hardware acceleration methods:" header.
func parseHWAccels(out []byte) []string {
	var methods []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		methods = append(methods, line)
	}
	return methods
}

// parseCodecTable reads the names of a -decoders/-encoders listing. Rows
// follow the " ------" separator as "<flags> <name> <description>".
func parseCodecTable(out []byte) []string {
	var names []string
	inTable := false
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "---") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		names = append(names, fields[1])
	}
	return names
}

func filterHEVC(names []string) []string {
	var out []string
	for _, n := range names {
		if n == "hevc" || n == SoftwareHEVCEncoder || strings.HasPrefix(n, "hevc_") {
			out = append(out, n)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
