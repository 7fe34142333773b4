package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"scribe-mcp-gateway/internal/audio"
	"scribe-mcp-gateway/internal/mcp"
	"scribe-mcp-gateway/internal/observability/logging"
)

const uploadField = "audio_file"

// transcribeFile runs one upload through a fresh session and answers with
// the first result. WAV uploads are unwrapped and their format is used for
// the session; anything else is treated as raw PCM in the default format.
func (a *API) transcribeFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)

	file, _, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio file too large")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "missing form field "+uploadField)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read audio file: "+err.Error())
		return
	}

	var initPayload mcp.InitPayload
	if bytes.HasPrefix(data, []byte("RIFF")) {
		pcm, format, err := audio.DecodeWAV(bytes.NewReader(data))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid wav file: "+err.Error())
			return
		}
		data = pcm
		initPayload.AudioFormat = &format
	}

	if a.maxChunkBytes > 0 && len(data) > a.maxChunkBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("audio exceeds %d bytes per transcription", a.maxChunkBytes))
		return
	}

	id := uuid.NewString()
	logger := logging.WithSession(id)
	ctx := r.Context()
	var seq int64
	send := func(kind mcp.Kind, payload mcp.Payload) mcp.Message {
		reply := a.handler.Handle(ctx, mcp.NewMessage(kind, id, seq, payload))
		seq++
		return reply
	}

	if reply := send(mcp.KindInit, initPayload); reply.Err() != nil {
		writeError(w, http.StatusInternalServerError, reply.Err().Error())
		return
	}
	sess, ok := a.handler.Session(id)
	if !ok {
		writeError(w, http.StatusInternalServerError, "session disappeared after init")
		return
	}
	defer func() {
		a.pipeline.StopSessionFor(sess)
		a.handler.Release(sess)
	}()

	if reply := send(mcp.KindStart, nil); reply.Err() != nil {
		writeError(w, http.StatusInternalServerError, reply.Err().Error())
		return
	}
	if err := a.pipeline.StartSession(sess); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if reply := send(mcp.KindAudio, mcp.AudioPayload{Data: data}); reply.Err() != nil {
		writeError(w, http.StatusInternalServerError, reply.Err().Error())
		return
	}

	wctx, cancel := context.WithTimeout(ctx, a.fileResultTimeout)
	defer cancel()

	result, err := sess.NextResult(wctx)
	if err != nil {
		logger.Warn().Err(err).Int("bytes", len(data)).Msg("No transcription result for upload")
		writeError(w, http.StatusInternalServerError, "no transcription result")
		return
	}

	logger.Info().Int("bytes", len(data)).Int("words", len(result.Words)).Msg("File transcribed")
	writeJSON(w, http.StatusOK, result)
}
