/*
 * This file is part of TransLive (https://github.com/translive/translive).
 * Copyright (C) 2026 TransLive Authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package session

// TranslationResult is one recognition/translation update produced from an
// inbound protocol event. Values are immutable once constructed and are
// delivered exactly once to the result sink.
type TranslationResult struct {
	SourceText     string
	TranslatedText string
	SourceLang     string
	TargetLang     string
	IsFinal        bool
}

// Inbound event types. The service speaks one of two shapes per connection:
// the bundled variant where the transcription-completed event carries both
// transcript and translation, or the split variant where translation text
// arrives as separate response.text events. The classifier maps both.
const (
	eventSessionCreated   = "session.created"
	eventSessionUpdated   = "session.updated"
	eventTranscriptText   = "conversation.item.input_audio_transcription.text"
	eventTranscriptDone   = "conversation.item.input_audio_transcription.completed"
	eventTranslationDelta = "response.text.delta"
	eventTranslationDone  = "response.text.done"
	eventSpeechStarted    = "input_audio_buffer.speech_started"
	eventSpeechStopped    = "input_audio_buffer.speech_stopped"
	eventError            = "error"
)

// Outbound event types
const (
	typeSessionUpdate = "session.update"
	typeAudioAppend   = "input_audio_buffer.append"
)

// serverEvent mirrors the JSON envelope of every inbound message. Fields
// are a union over all event kinds; the type discriminator decides which
// are meaningful.
type serverEvent struct {
	Type    string `json:"type"`
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
	Stash       string `json:"stash"`
	Transcript  string `json:"transcript"`
	Translation string `json:"translation"`
	Delta       string `json:"delta"`
	Text        string `json:"text"`
	Error       struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps one inbound event to at most one TranslationResult. Session
// lifecycle acks, voice-activity markers, errors and events with no text
// produce no result.
func classify(ev *serverEvent, targetLang string) (TranslationResult, bool) {
	switch ev.Type {
	case eventTranscriptText:
		if ev.Stash == "" {
			return TranslationResult{}, false
		}
		return TranslationResult{
			SourceText: ev.Stash,
			SourceLang: "auto",
			TargetLang: targetLang,
			IsFinal:    false,
		}, true

	case eventTranscriptDone:
		if ev.Transcript == "" && ev.Translation == "" {
			return TranslationResult{}, false
		}
		return TranslationResult{
			SourceText:     ev.Transcript,
			TranslatedText: ev.Translation,
			SourceLang:     "auto",
			TargetLang:     targetLang,
			IsFinal:        true,
		}, true

	case eventTranslationDelta:
		if ev.Delta == "" {
			return TranslationResult{}, false
		}
		return TranslationResult{
			TranslatedText: ev.Delta,
			SourceLang:     "auto",
			TargetLang:     targetLang,
			IsFinal:        false,
		}, true

	case eventTranslationDone:
		if ev.Text == "" {
			return TranslationResult{}, false
		}
		return TranslationResult{
			TranslatedText: ev.Text,
			SourceLang:     "auto",
			TargetLang:     targetLang,
			IsFinal:        true,
		}, true
	}

	return TranslationResult{}, false
}

// sessionUpdate declares recognition and translation parameters for the
// lifetime of the session. The target language is fixed at configuration
// time; changing it requires a new session.
type sessionUpdate struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	OutputModalities              []string            `json:"output_modalities"`
	InputAudioFormat              string              `json:"input_audio_format"`
	SampleRate                    int                 `json:"sample_rate"`
	EnableInputAudioTranscription bool                `json:"enable_input_audio_transcription"`
	InputAudioTranscription       transcriptionParams `json:"input_audio_transcription"`
	TurnDetection                 *turnDetection      `json:"turn_detection,omitempty"`
	Translation                   translationParams   `json:"translation"`
}

type transcriptionParams struct {
	Language string `json:"language"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type translationParams struct {
	Language string `json:"language"`
}

// audioAppend wraps one base64-encoded PCM chunk
type audioAppend struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}
