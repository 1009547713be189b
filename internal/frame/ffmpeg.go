package frame

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/Eierkopp/viddup/internal/remux"
	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// maxPlausibleDuration is the threshold past which a container's
// duration metadata is treated as missing/implausible.
const maxPlausibleDuration = 3 * time.Hour

// FFmpegSource decodes frames by shelling out to ffmpeg/ffprobe. The
// actual codec work lives entirely in the subprocess; this type only
// wires the plumbing around it.
type FFmpegSource struct {
	FFprobeBin string
	FFmpegBin  string
	Repairer   remux.Repairer
	// RepairPolicy enables a single remux-and-retry on an implausible
	// probe before giving up. Disabled by default.
	RepairPolicy bool
}

// NewFFmpegSource returns a source using "ffmpeg"/"ffprobe" on $PATH.
func NewFFmpegSource() *FFmpegSource {
	return &FFmpegSource{
		FFprobeBin: "ffprobe",
		FFmpegBin:  "ffmpeg",
		Repairer:   remux.NewFFmpegRepairer(),
	}
}

type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType        string `json:"codec_type"`
		Width            int    `json:"width"`
		Height           int    `json:"height"`
		RFrameRate       string `json:"r_frame_rate"`
		NbFrames         string `json:"nb_frames"`
		DurationOverride string `json:"duration"`
	} `json:"streams"`
}

// probe runs ffprobe and extracts fps/duration/nframes plus frame
// dimensions. Returns vidtypes.ErrSourceUnreadable if ffprobe fails or
// the container has no video stream.
func (s *FFmpegSource) probe(ctx context.Context, path string) (Metadata, int, int, error) {
	bin := s.FFprobeBin
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error", "-print_format", "json",
		"-show_format", "-show_streams", path)
	out, err := cmd.Output()
	if err != nil {
		return Metadata{}, 0, 0, fmt.Errorf("%w: ffprobe %s: %v", vidtypes.ErrSourceUnreadable, path, err)
	}

	var pf probeFormat
	if err := json.Unmarshal(out, &pf); err != nil {
		return Metadata{}, 0, 0, fmt.Errorf("%w: parse ffprobe output: %v", vidtypes.ErrSourceUnreadable, err)
	}

	var width, height int
	var fps float64
	var nframes int
	found := false
	for _, st := range pf.Streams {
		if st.CodecType != "video" {
			continue
		}
		found = true
		width, height = st.Width, st.Height
		fps = parseRate(st.RFrameRate)
		nframes = parseInt(st.NbFrames)
		break
	}
	if !found || width == 0 || height == 0 || fps <= 0 {
		return Metadata{}, 0, 0, fmt.Errorf("%w: no usable video stream in %s", vidtypes.ErrSourceUnreadable, path)
	}

	duration := parseFloat(pf.Format.Duration)

	return Metadata{FPS: fps, Duration: duration, NFrames: nframes}, width, height, nil
}

// Open implements Source. It probes the container, repairs once if
// the repair policy is enabled and duration looks missing/implausible,
// then streams grayscale frames off an ffmpeg rawvideo pipe.
func (s *FFmpegSource) Open(ctx context.Context, path string) (Metadata, <-chan Frame, <-chan error, error) {
	meta, width, height, err := s.probe(ctx, path)
	if err != nil {
		if s.RepairPolicy && s.Repairer != nil {
			if rerr := s.Repairer.Repair(ctx, path); rerr == nil {
				noRepair := *s
				noRepair.RepairPolicy = false
				return noRepair.Open(ctx, path)
			}
		}
		return Metadata{}, nil, nil, err
	}

	if s.RepairPolicy && (meta.Duration <= 0 || time.Duration(meta.Duration*float64(time.Second)) > maxPlausibleDuration) {
		if s.Repairer != nil {
			if rerr := s.Repairer.Repair(ctx, path); rerr == nil {
				noRepair := *s
				noRepair.RepairPolicy = false
				return noRepair.Open(ctx, path)
			}
		}
	}

	bin := s.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error", "-i", path,
		"-map", "0:v:0", "-vsync", "0",
		"-f", "rawvideo", "-pix_fmt", "gray", "pipe:1")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Metadata{}, nil, nil, fmt.Errorf("%w: stdout pipe: %v", vidtypes.ErrSourceUnreadable, err)
	}
	if err := cmd.Start(); err != nil {
		return Metadata{}, nil, nil, fmt.Errorf("%w: start ffmpeg: %v", vidtypes.ErrSourceUnreadable, err)
	}

	frames := make(chan Frame)
	errs := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errs)
		defer cmd.Wait()

		frameSize := width * height
		buf := make([]byte, frameSize)
		r := bufio.NewReaderSize(stdout, frameSize*2)

		idx := 0
		for {
			n, rerr := io.ReadFull(r, buf)
			if n > 0 && n == frameSize {
				gray := make([]float32, frameSize)
				for i := 0; i < frameSize; i++ {
					gray[i] = float32(buf[i])
				}
				select {
				case frames <- Frame{Gray: gray, Width: width, Height: height, Index: idx}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
				idx++
			}
			if rerr != nil {
				if rerr == io.EOF {
					return
				}
				// Partial final frame or pipe cut short: the container
				// decoded fewer frames than expected. Callers accept a
				// truncated series rather than failing the whole import.
				errs <- fmt.Errorf("%w: %v", vidtypes.ErrSourceTruncated, rerr)
				return
			}
		}
	}()

	return meta, frames, errs, nil
}

func parseRate(s string) float64 {
	var num, den float64
	if _, err := fmt.Sscanf(s, "%f/%f", &num, &den); err == nil && den != 0 {
		return num / den
	}
	return parseFloat(s)
}

func parseFloat(s string) float64 {
	var v float64
	fmt.Sscanf(s, "%f", &v)
	return v
}

func parseInt(s string) int {
	var v int
	fmt.Sscanf(s, "%d", &v)
	return v
}
