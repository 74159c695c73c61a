package media

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// OpenAIWhisperTranscriber implements Transcriber against OpenAI's hosted
// whisper-1 transcription endpoint. It is the default concrete Transcriber;
// callers needing a local/offline model supply their own implementation.
type OpenAIWhisperTranscriber struct {
	apiKey string
	client *http.Client
}

func NewOpenAIWhisperTranscriber(apiKey string) *OpenAIWhisperTranscriber {
	return &OpenAIWhisperTranscriber{apiKey: apiKey, client: &http.Client{}}
}

func (t *OpenAIWhisperTranscriber) Transcribe(blob []byte) (string, error) {
	if t.apiKey == "" {
		return "", fmt.Errorf("openai api key is not set")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "voice.ogg")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(blob)); err != nil {
		return "", err
	}
	writer.WriteField("model", "whisper-1")
	writer.Close()

	req, err := http.NewRequest("POST", "https://api.openai.com/v1/audio/transcriptions", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}
