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

import "io"

// Chunks produces a body as a finite, single-pass sequence of byte slices.
// Next returns io.EOF once the sequence is exhausted.
type Chunks interface {
	Next() ([]byte, error)
}

// ChunksFunc adapts an ordinary function to the Chunks interface.
type ChunksFunc func() ([]byte, error)

// Next calls f.
func (f ChunksFunc) Next() ([]byte, error) {
	return f()
}

// ChunkReader returns an io.ReadCloser which pulls chunks from c only as the
// reader is drained. If c implements io.Closer, Close is passed through.
func ChunkReader(c Chunks) io.ReadCloser {
	return &chunkReader{chunks: c}
}

type chunkReader struct {
	chunks Chunks
	buf    []byte
	err    error
}

var _ io.ReadCloser = &chunkReader{}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.buf, r.err = r.chunks.Next()
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.buf = nil
	if r.err == nil {
		r.err = io.ErrClosedPipe
	}
	if c, ok := r.chunks.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
