// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package utils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func makeEntry(level logrus.Level, message string, data logrus.Fields) *logrus.Entry {
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)
	entry.Level = level
	entry.Message = message
	entry.Data = data
	return entry
}

func TestFormatWithoutColors(t *testing.T) {
	f := &LoggerFormatter{
		PrefixFields:  []string{"component", "backend"},
		DisableColors: true,
	}

	out, err := f.Format(makeEntry(logrus.InfoLevel, " roast served \n", logrus.Fields{
		"backend":    "bolt",
		"component":  "memory",
		"session_id": "abc",
		"latency":    12,
	}))
	assert.NoError(t, err)
	assert.Equal(
		t,
		"2023-06-01T10:00:00Z [INFO] [memory>bolt] roast served [latency:12] [session_id:abc]\n",
		string(out),
	)
}

func TestFormatMissingPrefixField(t *testing.T) {
	f := &LoggerFormatter{
		PrefixFields:  []string{"component", "backend"},
		DisableColors: true,
	}

	out, err := f.Format(makeEntry(logrus.WarnLevel, "slow down", logrus.Fields{
		"backend": "memory",
	}))
	assert.NoError(t, err)
	assert.Equal(t, "2023-06-01T10:00:00Z [WARN] [memory] slow down\n", string(out))
}

func TestFormatWithColors(t *testing.T) {
	f := &LoggerFormatter{PrefixFields: []string{"component"}}

	out, err := f.Format(makeEntry(logrus.ErrorLevel, "boom", logrus.Fields{"component": "llm"}))
	assert.NoError(t, err)
	assert.Equal(t, "2023-06-01T10:00:00Z \x1b[31m[ERRO] [llm] \x1b[0mboom\n", string(out))
}
