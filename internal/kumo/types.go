package kumo

import "time"

// Site is a Kumo Cloud installation owned by the account.
type Site struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Adapter is the live device snapshot the cloud embeds inside a zone.
type Adapter struct {
	DeviceSerial  string   `json:"deviceSerial"`
	RoomTemp      *float64 `json:"roomTemp,omitempty"`
	OperationMode *string  `json:"operationMode,omitempty"`
	Power         *int     `json:"power,omitempty"`
	FanSpeed      *string  `json:"fanSpeed,omitempty"`
	AirDirection  *string  `json:"airDirection,omitempty"`
	SpCool        *float64 `json:"spCool,omitempty"`
	SpHeat        *float64 `json:"spHeat,omitempty"`
	Humidity      *int     `json:"humidity,omitempty"`
	Connected     *bool    `json:"connected,omitempty"`
}

// Zone is a site's logical HVAC area with at most one device adapter.
type Zone struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Adapter *Adapter `json:"adapter,omitempty"`
}

// DeviceModel describes the hardware behind a device detail record.
type DeviceModel struct {
	MaterialDescription *string `json:"materialDescription,omitempty"`
	SerialProfile       *string `json:"serialProfile,omitempty"`
}

// DeviceDetail is the full polled state of one device. Every field but
// the serial is optional; UpdatedAt is the cloud's own ordering key for
// deciding whether a locally issued command has been absorbed.
type DeviceDetail struct {
	SerialNumber  *string      `json:"serialNumber,omitempty"`
	Model         *DeviceModel `json:"model,omitempty"`
	RoomTemp      *float64     `json:"roomTemp,omitempty"`
	OperationMode *string      `json:"operationMode,omitempty"`
	Power         *int         `json:"power,omitempty"`
	FanSpeed      *string      `json:"fanSpeed,omitempty"`
	AirDirection  *string      `json:"airDirection,omitempty"`
	SpCool        *float64     `json:"spCool,omitempty"`
	SpHeat        *float64     `json:"spHeat,omitempty"`
	Humidity      *int         `json:"humidity,omitempty"`
	Connected     *bool        `json:"connected,omitempty"`
	UpdatedAt     *time.Time   `json:"updatedAt,omitempty"`
}

// SetPoints are temperature bounds from a device profile.
type SetPoints struct {
	Heat *float64 `json:"heat,omitempty"`
	Cool *float64 `json:"cool,omitempty"`
}

// DeviceProfile is the static capability descriptor for a device. It is
// refreshed alongside device detail but never overlaid by cached commands.
type DeviceProfile struct {
	NumberOfFanSpeeds *int       `json:"numberOfFanSpeeds,omitempty"`
	HasVaneSwing      *bool      `json:"hasVaneSwing,omitempty"`
	HasVaneDir        *bool      `json:"hasVaneDir,omitempty"`
	HasModeHeat       *bool      `json:"hasModeHeat,omitempty"`
	HasModeDry        *bool      `json:"hasModeDry,omitempty"`
	HasModeVent       *bool      `json:"hasModeVent,omitempty"`
	MinimumSetPoints  *SetPoints `json:"minimumSetPoints,omitempty"`
	MaximumSetPoints  *SetPoints `json:"maximumSetPoints,omitempty"`
}

// TokenPair is the access/refresh token pair the cloud issues.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginResponse is the payload returned by a successful login.
type LoginResponse struct {
	Token TokenPair `json:"token"`
}
