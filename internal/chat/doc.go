// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat reconciles streamed backend responses into the visible
// conversation.
//
// A Session owns the message list a user sees. Each question becomes a
// Request with its own Turn, which folds the decoded envelopes into tool,
// assistant, image and error messages. The Policy picked at submission time
// decides whether the request is ephemeral (a short window of context, nothing
// saved) or persisted (the whole conversation, saved through the history
// store once the answer is complete).
//
// # Request Lifecycle
//
//	Idle -> Sending -> Streaming -> Completed
//	                            \-> Failed
//	                            \-> Aborted   (StopGenerating)
//
// Once StopGenerating returns no further envelope of the stopped requests is
// applied to the visible list, and nothing they produced is saved.
//
// # Usage
//
//	sess := chat.NewSession(client, store, chat.Options{Model: model.ModelGPT4})
//	sess.Subscribe(func(s chat.Snapshot) { render(s.Messages) })
//	req, err := sess.Submit(ctx, "What is the leave policy?")
//	if err != nil {
//	    return err
//	}
//	res := req.Wait()
package chat
