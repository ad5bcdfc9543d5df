package comm

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/xmega.go/pkg/framework"
)

// Reconnector keeps a Proxy running, reopening the link with backoff
// after it fails.
type Reconnector struct {
	Proxy   *Proxy
	Open    func() (*Link, error)
	Backoff *framework.Backoff
	// OnState is called with true once a link is opened and false once
	// it stopped.
	OnState func(up bool)
}

// Run implements Runnable.
func (r *Reconnector) Run(ctx context.Context) error {
	for {
		link, err := r.Open()
		if err == nil {
			r.Backoff.Reset()
			r.notify(true)
			err = r.Proxy.Run(ctx, link)
			r.notify(false)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			glog.Errorf("link: %v, retry #%d", err, r.Backoff.Attempts()+1)
		}
		if err = r.Backoff.Wait(ctx); err != nil {
			return err
		}
	}
}

func (r *Reconnector) notify(up bool) {
	if r.OnState != nil {
		r.OnState(up)
	}
}
