package gateway

// Intents select which dispatch events the gateway sends.
const (
	IntentGuilds                 = 1 << 0
	IntentGuildMembers           = 1 << 1
	IntentGuildModeration        = 1 << 2
	IntentGuildEmojisAndStickers = 1 << 3
	IntentGuildIntegrations      = 1 << 4
	IntentGuildWebhooks          = 1 << 5
	IntentGuildInvites           = 1 << 6
	IntentGuildVoiceStates       = 1 << 7
	IntentGuildPresences         = 1 << 8
	IntentGuildMessages          = 1 << 9
	IntentGuildMessageReactions  = 1 << 10
	IntentGuildMessageTyping     = 1 << 11
	IntentDirectMessages         = 1 << 12
	IntentDirectMessageReactions = 1 << 13
	IntentDirectMessageTyping    = 1 << 14
	IntentMessageContent         = 1 << 15

	// DefaultIntents covers the events the cache understands. Message content is a
	// privileged intent and must be enabled for the application.
	DefaultIntents = IntentGuilds | IntentGuildEmojisAndStickers | IntentGuildMessages |
		IntentGuildMessageReactions | IntentDirectMessages | IntentDirectMessageReactions |
		IntentMessageContent

	// privilegedIntents need to be switched on in the developer portal.
	privilegedIntents = IntentGuildMembers | IntentGuildPresences | IntentMessageContent
)

// PrivilegedIntents returns the privileged bits set in intents.
func PrivilegedIntents(intents int) int {
	return intents & privilegedIntents
}
