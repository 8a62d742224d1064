// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the grounded chat service.
//
// This package implements the client side of the chat backend: the streaming
// conversation endpoints (/conversation, /dalle, /history/generate) and the
// conversation history API (/history/*).
//
// # Key Types
//
//   - Client: HTTP client for the backend, safe for concurrent use
//   - Stream: An open streaming response
//   - Decoder: Newline-delimited JSON decoder tolerant to split objects
//   - Envelope: One decoded stream object (choices, image_url or error)
//   - ClientError: Typed error with status and body of failed requests
//
// # Usage
//
//	client := backend.NewClientWithConfig(&backend.ClientConfig{
//	    BaseURL: "https://chat.example.com",
//	})
//	stream, err := client.Generate(ctx, messages, conversationID)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	if !stream.OK() {
//	    return fmt.Errorf("backend said %d: %s", stream.StatusCode, stream.ReadBody())
//	}
//	for {
//	    env, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package backend
