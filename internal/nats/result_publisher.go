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

package nats

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/translive/translive-go/internal/session"
)

// TranscriptMessage is the JSON payload published for every translation
// result, so out-of-process presentation layers can subscribe.
type TranscriptMessage struct {
	Channel        string    `json:"channel"`
	SourceText     string    `json:"source_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	Final          bool      `json:"final"`
	Timestamp      time.Time `json:"timestamp"`
}

// Connection interface for dependency injection
type Connection interface {
	Publish(subject string, data []byte) error
	Close()
}

// ConnectionAdapter adapts *nats.Conn to the Connection interface
type ConnectionAdapter struct {
	conn *nats.Conn
}

func NewConnectionAdapter(conn *nats.Conn) *ConnectionAdapter {
	return &ConnectionAdapter{conn: conn}
}

func (a *ConnectionAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *ConnectionAdapter) Close() {
	a.conn.Close()
}

// ResultPublisher mirrors translation results onto the message bus under
// <prefix>.<channel>.partial|final subjects.
type ResultPublisher struct {
	conn          Connection
	subjectPrefix string
}

// NewResultPublisher connects to NATS with retry and returns a publisher
func NewResultPublisher(servers []string, subjectPrefix string) (*ResultPublisher, error) {
	var nc *nats.Conn
	var err error

	url := strings.Join(servers, ",")
	for i := 0; i < 5; i++ {
		nc, err = nats.Connect(url, nats.Name("translive"))
		if err == nil {
			break
		}
		log.Printf("⚠️ Failed to connect to NATS (attempt %d/5): %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after 5 attempts: %w", err)
	}

	log.Printf("✅ Connected to NATS at %s", url)
	return NewResultPublisherWithConnection(NewConnectionAdapter(nc), subjectPrefix), nil
}

// NewResultPublisherWithConnection creates a publisher over an existing
// connection (for testing)
func NewResultPublisherWithConnection(conn Connection, subjectPrefix string) *ResultPublisher {
	return &ResultPublisher{conn: conn, subjectPrefix: subjectPrefix}
}

// Publish sends one result to the channel's partial or final subject
func (p *ResultPublisher) Publish(channel string, result session.TranslationResult) error {
	kind := "partial"
	if result.IsFinal {
		kind = "final"
	}
	subject := fmt.Sprintf("%s.%s.%s", p.subjectPrefix, channel, kind)

	msg := TranscriptMessage{
		Channel:        channel,
		SourceText:     result.SourceText,
		TranslatedText: result.TranslatedText,
		SourceLang:     result.SourceLang,
		TargetLang:     result.TargetLang,
		Final:          result.IsFinal,
		Timestamp:      time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript message: %w", err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close closes the NATS connection
func (p *ResultPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		log.Println("🔌 NATS connection closed")
	}
}
