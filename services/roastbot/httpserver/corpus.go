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

package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"github.com/gdg-charusat/super-roast-bot/services/roastbot/rag"
)

const corpusFileField = "file"

type uploadCorpusResponse struct {
	response
	File   string `json:"file" description:"Name of the stored corpus file"`
	Chunks int    `json:"chunks" description:"Number of chunks in the retrieval index after the reload"`
}

// uploadCorpus stores a .txt or .pdf file in the corpus directory and reloads the retrieval index
func (server *Server) uploadCorpus(c *gin.Context) {
	fileHeader, err := c.FormFile(corpusFileField)
	if err != nil {
		maxBytesErr := &http.MaxBytesError{}
		if errors.As(err, &maxBytesErr) {
			abortWithError(c, wrapError(
				http.StatusRequestEntityTooLarge,
				fmt.Errorf("uploaded file is too large, the limit is %s", humanize.Bytes(uint64(maxBytesErr.Limit))),
			))
			return
		}
		abortWithError(c, wrapError(http.StatusBadRequest, fmt.Errorf("expecting a multipart %q field (%w)", corpusFileField, err)))
		return
	}

	fileName := filepath.Base(fileHeader.Filename)
	if !rag.IsCorpusFile(fileName) {
		abortWithError(c, wrapError(
			http.StatusUnsupportedMediaType,
			fmt.Errorf("unsupported file %q, only .txt and .pdf files are supported", fileName),
		))
		return
	}
	if server.options.MaxUploadSize > 0 && fileHeader.Size > server.options.MaxUploadSize {
		abortWithError(c, wrapError(
			http.StatusRequestEntityTooLarge,
			fmt.Errorf(
				"uploaded file is %s, the limit is %s",
				humanize.Bytes(uint64(fileHeader.Size)),
				humanize.Bytes(uint64(server.options.MaxUploadSize)),
			),
		))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, wrapError(http.StatusBadRequest, err))
		return
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		abortWithError(c, wrapError(http.StatusBadRequest, err))
		return
	}

	retriever := server.services.Retriever
	fs := retriever.Fs()
	if err := fs.MkdirAll(retriever.DataDir(), 0755); err != nil {
		abortWithError(c, err)
		return
	}
	destination := filepath.Join(retriever.DataDir(), fileName)
	if err := afero.WriteFile(fs, destination, content, 0644); err != nil {
		abortWithError(c, fmt.Errorf("unable to store corpus file %q (%w)", fileName, err))
		return
	}

	if err := retriever.Reload(c.Request.Context()); err != nil {
		abortWithError(c, fmt.Errorf("unable to reload the corpus (%w)", err))
		return
	}
	server.services.Metrics.SetCorpusChunks(retriever.Len())

	log.WithField("file", fileName).WithField("size", humanize.Bytes(uint64(len(content)))).Info("corpus file uploaded")
	c.JSON(http.StatusCreated, uploadCorpusResponse{
		response: response{
			Message: fmt.Sprintf("%q added to the roast corpus", fileName),
		},
		File:   fileName,
		Chunks: retriever.Len(),
	})
}
