package protocol

import "strconv"

// ChannelType identifies the kind of conversation a message belongs to.
type ChannelType int

const (
	ChannelPerson          ChannelType = 1
	ChannelGroup           ChannelType = 2
	ChannelCustomerService ChannelType = 3
	ChannelCommunity       ChannelType = 4
	ChannelCommunityTopic  ChannelType = 5
	ChannelInfo            ChannelType = 6
	ChannelData            ChannelType = 7
	ChannelTemp            ChannelType = 8
	ChannelLive            ChannelType = 9
	ChannelVisitors        ChannelType = 10
)

var channelTypeNames = map[ChannelType]string{
	ChannelPerson:          "person",
	ChannelGroup:           "group",
	ChannelCustomerService: "customer_service",
	ChannelCommunity:       "community",
	ChannelCommunityTopic:  "community_topic",
	ChannelInfo:            "info",
	ChannelData:            "data",
	ChannelTemp:            "temp",
	ChannelLive:            "live",
	ChannelVisitors:        "visitors",
}

// Valid reports whether t is a known channel type.
func (t ChannelType) Valid() bool {
	_, ok := channelTypeNames[t]
	return ok
}

func (t ChannelType) String() string {
	if s, ok := channelTypeNames[t]; ok {
		return s
	}
	return "channel_type(" + strconv.Itoa(int(t)) + ")"
}

// DeviceFlag identifies the client platform during authentication.
type DeviceFlag int

const (
	DeviceApp     DeviceFlag = 1
	DeviceWeb     DeviceFlag = 2
	DeviceDesktop DeviceFlag = 3
	DeviceOther   DeviceFlag = 4
)

// Valid reports whether f is a known device flag.
func (f DeviceFlag) Valid() bool {
	return f >= DeviceApp && f <= DeviceOther
}

func (f DeviceFlag) String() string {
	switch f {
	case DeviceApp:
		return "app"
	case DeviceWeb:
		return "web"
	case DeviceDesktop:
		return "desktop"
	case DeviceOther:
		return "other"
	}
	return "device_flag(" + strconv.Itoa(int(f)) + ")"
}
