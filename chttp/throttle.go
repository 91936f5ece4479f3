// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package chttp

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// throttle is an http.RoundTripper, using the time/rate token
// bucket limiter to restrict outbound calls.
type throttle struct {
	limiter *rate.Limiter
	rps     int
	burst   int
	next    http.RoundTripper
	logger  zerolog.Logger
}

var _ http.RoundTripper = &throttle{}

func newThrottle(rps, burst int, logger zerolog.Logger, next http.RoundTripper) (*throttle, error) {
	if rps <= 0 || burst <= 0 {
		return nil, errors.Wrapf(ErrMustNotBeZero, "rps[%d] and burst[%d]", rps, burst)
	}
	return &throttle{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
		burst:   burst,
		next:    next,
		logger:  logger,
	}, nil
}

func (t *throttle) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	start := time.Now()
	if !t.limiter.Allow() {
		t.logger.Debug().
			Int("rate", t.rps).
			Int("burst", t.burst).
			Str("path", r.URL.Path).
			Msg("throttle tokens exhausted")
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWaitingFailed, err)
		}
		t.logger.Debug().
			Dur("waited", time.Since(start)).
			Int("rate", t.rps).
			Int("burst", t.burst).
			Msg("throttle wait complete")
	}

	// The context may have expired while waiting.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}
	return t.next.RoundTrip(r)
}
