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

package rag

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/spf13/afero"
)

// IsCorpusFile checks if a file name has one of the supported corpus extensions
func IsCorpusFile(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	return ext == ".txt" || ext == ".pdf"
}

func readPDF(fs afero.Fs, filePath string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf file (%v)", r)
		}
	}()

	f, err := fs.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", err
	}

	plainText, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	_, err = io.Copy(&buf, plainText)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// LoadCorpus reads and chunks every supported file directly inside dataDir.
//
// Files are read in lexical order, a missing directory is created and results in an empty corpus.
func LoadCorpus(fs afero.Fs, dataDir string, chunkSize int) ([]Chunk, error) {
	exists, err := afero.DirExists(fs, dataDir)
	if err != nil {
		return nil, fmt.Errorf("unable to access corpus directory %q (%w)", dataDir, err)
	}
	if !exists {
		log.WithField("data_dir", dataDir).Info("corpus directory doesn't exist, creating it")
		if err := fs.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("unable to create corpus directory %q (%w)", dataDir, err)
		}
		return []Chunk{}, nil
	}

	entries, err := afero.ReadDir(fs, dataDir)
	if err != nil {
		return nil, fmt.Errorf("unable to list corpus directory %q (%w)", dataDir, err)
	}

	fileNames := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !IsCorpusFile(entry.Name()) {
			continue
		}
		fileNames = append(fileNames, entry.Name())
	}
	sort.Strings(fileNames)

	chunks := []Chunk{}
	for _, fileName := range fileNames {
		filePath := filepath.Join(dataDir, fileName)
		fileLog := log.WithField("file", fileName)

		var text string
		if strings.ToLower(filepath.Ext(fileName)) == ".pdf" {
			text, err = readPDF(fs, filePath)
			if err != nil {
				fileLog.WithField("error", err).Warn("unable to read pdf file, skipping it")
				continue
			}
		} else {
			content, err := afero.ReadFile(fs, filePath)
			if err != nil {
				return nil, fmt.Errorf("unable to read corpus file %q (%w)", filePath, err)
			}
			text = string(content)
		}

		fileChunks := SplitChunks(text, fileName, chunkSize)
		fileLog.WithField("chunks", len(fileChunks)).Debug("corpus file loaded")
		chunks = append(chunks, fileChunks...)
	}
	return chunks, nil
}
