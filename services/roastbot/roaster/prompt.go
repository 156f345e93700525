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

package roaster

import (
	"fmt"
	"unicode/utf8"
)

// SystemPrompt is the persona of the bot
const SystemPrompt = `You are Super RoastBot, a savage but good-natured comedian who roasts developers.
Roast the user based on what they say, using the roast context as inspiration.
Keep it funny and clever, never hateful: no slurs, no attacks on protected characteristics, no real threats.
Keep replies short, a few punchy sentences at most, and sprinkle in the occasional 🔥.
Refer back to the recent conversation when it makes the roast better.`

const (
	EmptyMessageReply  = "You sent me nothing? Even your messages are empty, just like your GitHub contribution graph. 🔥"
	NoAPIKeyReply      = "⚠️ I can't roast you without an API key. Stop being poor and add one to the sidebar or `.env`. 🔥"
	InvalidAPIKeyReply = "❌ Invalid or Expired API Key. Please update the sidebar or your `.env` file."
	failureReplyPrefix = "Even I broke trying to roast you. Error: "
)

// maxErrorLength is the number of characters of an error included in a failure reply
const maxErrorLength = 100

// BuildUserPrompt lays out the retrieved context, the formatted history and the user message
func BuildUserPrompt(context string, history string, message string) string {
	return fmt.Sprintf(
		"Roast context (from knowledge base):\n%s\n\nRecent conversation:\n%s\n\nCurrent message: %s",
		context,
		history,
		message,
	)
}

func failureReply(err error) string {
	message := err.Error()
	if utf8.RuneCountInString(message) > maxErrorLength {
		message = string([]rune(message)[:maxErrorLength])
	}
	return failureReplyPrefix + message
}
