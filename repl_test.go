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

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseREPLRecord(t *testing.T) {
	rec, err := parseREPLRecord("500 1_000_000 10.5%")
	require.NoError(t, err)
	assert.Equal(t, 500.0, rec.Elapsed())
	assert.Equal(t, int64(1_000_000), rec.Rows())
	assert.Equal(t, 10.5, rec.CPU())

	rec, err = parseREPLRecord("120 - 40")
	require.NoError(t, err)
	assert.Nil(t, rec.RowsProcessed)
	assert.Equal(t, 40.0, rec.CPU())

	rec, err = parseREPLRecord("3.5")
	require.NoError(t, err)
	assert.Nil(t, rec.CPUPercent)

	_, err = parseREPLRecord("1 2 3 4")
	assert.Error(t, err)
	_, err = parseREPLRecord("abc")
	assert.Error(t, err)
}
