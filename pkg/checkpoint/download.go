package checkpoint

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-resty/resty/v2"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// HTTPFetcher downloads checkpoints over HTTP, rendering progress to Progress.
type HTTPFetcher struct {
	Client   *resty.Client
	Progress io.Writer
}

func NewHTTPFetcher(progress io.Writer) *HTTPFetcher {
	return &HTTPFetcher{
		Client:   resty.New().SetRetryCount(0),
		Progress: progress,
	}
}

// Fetch streams url into dest. The body is written to dest+".part" and
// renamed once complete, so an interrupted download never looks cached.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, dest string) error {
	resp, err := f.Client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return fmt.Errorf("GET %s: %s", url, resp.Status())
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return err
	}
	defer os.Remove(part)

	progress := f.Progress
	if progress == nil {
		progress = io.Discard
	}
	total := resp.RawResponse.ContentLength
	if total < 0 {
		total = 0
	}
	p := mpb.NewWithContext(ctx, mpb.WithOutput(progress), mpb.WithWidth(60))
	bar := p.New(total,
		mpb.BarStyle().Rbound("|"),
		mpb.PrependDecorators(
			decor.Name(filepath.Base(dest)+" "),
			decor.Counters(decor.SizeB1024(0), "% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30),
		),
	)
	reader := bar.ProxyReader(body)
	_, copyErr := io.Copy(out, reader)
	_ = reader.Close()
	if copyErr != nil {
		bar.Abort(false)
	} else {
		bar.SetTotal(-1, true)
	}
	p.Wait()
	if copyErr != nil {
		_ = out.Close()
		return fmt.Errorf("failed to download %s: %w", url, copyErr)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(part, dest)
}
