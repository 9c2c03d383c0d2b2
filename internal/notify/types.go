// Package notify models status-bar notifications and the cache that keeps
// each (type, message) pair from being announced more than once.
package notify

// Type classifies a status notification by the icon it carries.
type Type int

const (
	TypeUnknown Type = iota
	TypeTextMessage
	TypeTextMessageFailed
	TypeMissedCall
	TypeUSBConnected
	TypeMute
	TypeChat
	TypeError
	TypeMore
	TypeSDCard
	TypeSDCardUSB
	TypeSync
	TypeSyncNoAnim
	TypeVoicemail
	TypePlay
	TypeEmail
)

// Types lists every known type in announcement order.
var Types = []Type{
	TypeTextMessage, TypeTextMessageFailed, TypeMissedCall, TypeUSBConnected,
	TypeMute, TypeChat, TypeError, TypeMore, TypeSDCard, TypeSDCardUSB,
	TypeSync, TypeSyncNoAnim, TypeVoicemail, TypePlay, TypeEmail,
}

var typeInfo = map[Type]struct{ name, label string }{
	TypeTextMessage:       {"TEXT_MESSAGE", "New text message"},
	TypeTextMessageFailed: {"TEXT_MESSAGE_FAILED", "Text message sending failed"},
	TypeMissedCall:        {"MISSED_CALL", "Missed call"},
	TypeUSBConnected:      {"USB_CONNECTED", "USB connected"},
	TypeMute:              {"MUTE", "Call muted"},
	TypeChat:              {"CHAT", "New chat message"},
	TypeError:             {"ERROR", "Error"},
	TypeMore:              {"MORE", "More notifications"},
	TypeSDCard:            {"SDCARD", "SD card"},
	TypeSDCardUSB:         {"SDCARD_USB", "SD card USB"},
	TypeSync:              {"SYNC", "Synchronization"},
	TypeSyncNoAnim:        {"SYNC_NOANIM", "Synchronization"},
	TypeVoicemail:         {"VOICEMAIL", "Voicemail"},
	TypePlay:              {"PLAY", "Now playing"},
	TypeEmail:             {"EMAIL", "New email"},
}

// String returns the type's identifier, e.g. MISSED_CALL.
func (t Type) String() string {
	if info, ok := typeInfo[t]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// Label returns the spoken label, or "" for TypeUnknown.
func (t Type) Label() string {
	return typeInfo[t].label
}

// ParseType maps an identifier back to its Type.
func ParseType(name string) (Type, bool) {
	for t, info := range typeInfo {
		if info.name == name {
			return t, true
		}
	}
	return TypeUnknown, false
}

// Icon identifiers as reported by the host in the notification payload.
// The first group are application resources and differ per platform
// release; the rest are framework drawables.
const (
	IconSMSDonut        = 0x7f020036
	IconSMSEclair       = 0x7f02003d
	IconSMSFailedDonut  = 0x7f020035
	IconSMSFailedEclair = 0x7f02003e
	IconPlayDonut       = 0x7f020042
	IconPlayEclair      = 0x7f02004e
	IconEmail           = 0x7f020050
	IconUSB             = 0x01080239
	IconMissedCall      = 0x0108007f
	IconMute            = 0x01080079
	IconChat            = 0x0108007a
	IconError           = 0x0108007b
	IconMore            = 0x0108007c
	IconSDCard          = 0x01080080
	IconSDCardUSB       = 0x01080081
	IconSync            = 0x01080082
	IconSyncNoAnim      = 0x01080083
	IconVoicemail       = 0x01080084
	IconPhoneCall       = 0x010800a7
)

var iconTypes = map[int]Type{
	IconSMSDonut:        TypeTextMessage,
	IconSMSEclair:       TypeTextMessage,
	IconSMSFailedDonut:  TypeTextMessageFailed,
	IconSMSFailedEclair: TypeTextMessageFailed,
	IconPlayDonut:       TypePlay,
	IconPlayEclair:      TypePlay,
	IconEmail:           TypeEmail,
	IconUSB:             TypeUSBConnected,
	IconMissedCall:      TypeMissedCall,
	IconMute:            TypeMute,
	IconChat:            TypeChat,
	IconError:           TypeError,
	IconMore:            TypeMore,
	IconSDCard:          TypeSDCard,
	IconSDCardUSB:       TypeSDCardUSB,
	IconSync:            TypeSync,
	IconSyncNoAnim:      TypeSyncNoAnim,
	IconVoicemail:       TypeVoicemail,
}

// TypeForIcon maps a notification icon to its type.
func TypeForIcon(icon int) Type {
	return iconTypes[icon]
}

// IsPhoneCall reports whether icon is the in-progress call indicator, which
// repeats through every phase of a call and is never announced.
func IsPhoneCall(icon int) bool {
	return icon == IconPhoneCall
}
