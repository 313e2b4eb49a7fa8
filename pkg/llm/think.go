// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package llm

import "strings"

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
	// thinkBufSize is sized to the longer of the two tags so a tag split
	// across two deltas is never missed.
	thinkBufSize = len(thinkCloseTag)
)

// ThinkStripper removes "<think>...</think>" reasoning regions from a
// token stream on the fly. It is a two-state machine (outside/inside a
// think block) fronted by a small sliding buffer, so a tag boundary that
// falls across two Write calls is still recognized. Create one per stream;
// it is not safe for concurrent use and must not be shared across requests.
type ThinkStripper struct {
	inThink bool
	buf     strings.Builder // holds up to thinkBufSize unresolved trailing bytes
}

// NewThinkStripper returns a stripper ready to process the start of a
// stream.
func NewThinkStripper() *ThinkStripper {
	return &ThinkStripper{}
}

// Write feeds the next fragment of model output and returns the portion,
// if any, that is safe to emit to the caller immediately. Bytes that might
// still be part of a split tag are held back until the next call or Flush.
func (t *ThinkStripper) Write(fragment string) string {
	t.buf.WriteString(fragment)
	pending := t.buf.String()
	t.buf.Reset()

	var out strings.Builder
	for {
		if t.inThink {
			idx := strings.Index(pending, thinkCloseTag)
			if idx < 0 {
				// Keep a tail long enough to catch a split close tag.
				if len(pending) >= thinkBufSize-1 {
					t.buf.WriteString(pending[len(pending)-(thinkBufSize-1):])
				} else {
					t.buf.WriteString(pending)
				}
				return out.String()
			}
			pending = pending[idx+len(thinkCloseTag):]
			t.inThink = false
			continue
		}

		idx := strings.Index(pending, thinkOpenTag)
		if idx < 0 {
			// Emit everything except a possible partial tag at the tail.
			safe := len(pending) - (thinkBufSize - 1)
			if safe <= 0 {
				t.buf.WriteString(pending)
				return out.String()
			}
			out.WriteString(pending[:safe])
			t.buf.WriteString(pending[safe:])
			return out.String()
		}
		out.WriteString(pending[:idx])
		pending = pending[idx+len(thinkOpenTag):]
		t.inThink = true
	}
}

// Flush returns any bytes still held back at stream end. Call once after
// the final Write; the stripper must not be reused afterward.
func (t *ThinkStripper) Flush() string {
	if t.inThink {
		// An unterminated think block: the remainder is reasoning, drop it.
		t.buf.Reset()
		return ""
	}
	rest := t.buf.String()
	t.buf.Reset()
	return rest
}

// StripThink removes think regions from a complete, non-streamed string in
// one shot — the degenerate case of feeding the whole text through a single
// ThinkStripper.
func StripThink(s string) string {
	st := NewThinkStripper()
	return st.Write(s) + st.Flush()
}
