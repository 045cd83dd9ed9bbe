// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Department of Linguistics,
// Faculty of Arts, Charles University
// Copyright 2025 The awrdetect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Anasbourzik7/awrdetect/eval"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	DetectionPrefix byte = 0x00 // cached detection results
	AuxDataPrefix   byte = 0x02 // auxiliary data
)

// ReportKey creates a cache key for a report processed
// by a concrete model.
func ReportKey(reportData []byte, modelFingerprint string) string {
	sum := sha256.New()
	sum.Write(reportData)
	sum.Write([]byte("#" + modelFingerprint))
	return hex.EncodeToString(sum.Sum(nil))
}

func prefixedKey(prefix byte, key string) []byte {
	keyBytes := make([]byte, 1+len(key))
	keyBytes[0] = prefix
	copy(keyBytes[1:], []byte(key))
	return keyBytes
}

func encodeDetection(det eval.Detection) ([]byte, error) {
	data, err := msgpack.Marshal(det)
	if err != nil {
		return nil, fmt.Errorf("failed to encode detection: %w", err)
	}
	return data, nil
}

func decodeDetection(data []byte) (eval.Detection, error) {
	var ans eval.Detection
	if err := msgpack.Unmarshal(data, &ans); err != nil {
		return ans, fmt.Errorf("failed to decode detection: %w", err)
	}
	return ans, nil
}

func encodeTime(t time.Time) []byte {
	buf := make([]byte, 16) // 8 bytes for seconds + 8 bytes for nanoseconds
	utc := t.UTC()
	binary.BigEndian.PutUint64(buf[0:8], uint64(utc.Unix()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(utc.Nanosecond()))
	return buf
}

func decodeTime(data []byte) (time.Time, error) {
	if len(data) != 16 {
		return time.Time{}, fmt.Errorf("invalid byte slice length: expected 16, got %d", len(data))
	}
	seconds := int64(binary.BigEndian.Uint64(data[0:8]))
	nanoseconds := int64(binary.BigEndian.Uint64(data[8:16]))
	return time.Unix(seconds, nanoseconds).UTC(), nil
}
