package browser

import (
	"context"
	"time"
)

// instrumented decorates a Driver with Prometheus accounting.
type instrumented struct {
	Driver
}

// Instrument wraps d so every operation is counted and timed.
func Instrument(d Driver) Driver {
	if d == nil {
		return nil
	}
	if _, ok := d.(*instrumented); ok {
		return d
	}
	return &instrumented{Driver: d}
}

func (d *instrumented) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	start := time.Now()
	err := d.Driver.Navigate(ctx, url, timeout)
	recordAction(OpNavigate, start, err)
	return err
}

func (d *instrumented) Click(ctx context.Context, selector string, timeout time.Duration) error {
	start := time.Now()
	err := d.Driver.Click(ctx, selector, timeout)
	recordAction(OpClick, start, err)
	return err
}

func (d *instrumented) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	start := time.Now()
	err := d.Driver.Fill(ctx, selector, value, timeout)
	recordAction(OpFill, start, err)
	return err
}

func (d *instrumented) Select(ctx context.Context, selector, value string, timeout time.Duration) error {
	start := time.Now()
	err := d.Driver.Select(ctx, selector, value, timeout)
	recordAction(OpSelect, start, err)
	return err
}

func (d *instrumented) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	start := time.Now()
	err := d.Driver.WaitVisible(ctx, selector, timeout)
	recordAction(OpWaitVisible, start, err)
	return err
}

func (d *instrumented) Visible(ctx context.Context, selector string) (bool, error) {
	start := time.Now()
	ok, err := d.Driver.Visible(ctx, selector)
	recordAction(OpVisible, start, err)
	return ok, err
}

func (d *instrumented) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	start := time.Now()
	text, err := d.Driver.Text(ctx, selector, timeout)
	recordAction(OpText, start, err)
	return text, err
}

func (d *instrumented) Screenshot(ctx context.Context) ([]byte, error) {
	start := time.Now()
	buf, err := d.Driver.Screenshot(ctx)
	recordAction(OpScreenshot, start, err)
	return buf, err
}

func (d *instrumented) Download(ctx context.Context, selector, dir string, timeout time.Duration) (string, error) {
	start := time.Now()
	path, err := d.Driver.Download(ctx, selector, dir, timeout)
	recordAction(OpDownload, start, err)
	return path, err
}

func (d *instrumented) PressKey(ctx context.Context, key string) error {
	start := time.Now()
	err := d.Driver.PressKey(ctx, key)
	recordAction(OpPressKey, start, err)
	return err
}

func (d *instrumented) TypeText(ctx context.Context, text string) error {
	start := time.Now()
	err := d.Driver.TypeText(ctx, text)
	recordAction(OpTypeText, start, err)
	return err
}

func (d *instrumented) Evaluate(ctx context.Context, script string, out any) error {
	start := time.Now()
	err := d.Driver.Evaluate(ctx, script, out)
	recordAction(OpEvaluate, start, err)
	return err
}
