package wire

import "fmt"

// Confirmation identifies the kind of sensor->server confirmation carried in
// the body of a tunnelled request. Numeric values are part of the wire contract and
// must never be renumbered.
type Confirmation uint8

const (
	NoConfirmation      Confirmation = 0
	SubscriptionConfirm Confirmation = 1
	KeyloadRegistration Confirmation = 2
	ClearClientState    Confirmation = 3
	SendMessages        Confirmation = 4
)

func (c Confirmation) String() string {
	switch c {
	case NoConfirmation:
		return "NO_CONFIRMATION"
	case SubscriptionConfirm:
		return "SUBSCRIPTION"
	case KeyloadRegistration:
		return "KEYLOAD_REGISTRATION"
	case ClearClientState:
		return "CLEAR_CLIENT_STATE"
	case SendMessages:
		return "SEND_MESSAGES"
	default:
		return "UNKNOWN_CONFIRMATION"
	}
}

// NeededSize reports the size of the bare tag.
func (c Confirmation) NeededSize() int { return TagSize }

func (c Confirmation) ToBytes(buf []byte) (int, error) { return putTag(uint8(c), buf) }

func ConfirmationFromBytes(buf []byte) (Confirmation, error) {
	tag, err := getTag(buf)
	if err != nil {
		return 0, err
	}
	return Confirmation(tag), nil
}

// SubscriptionConfirmation reports the subscriber's link and public key
// after a successful subscribe-to-announcement round trip.
type SubscriptionConfirmation struct {
	SubscriptionLink string
	PupKey           string
}

func (s SubscriptionConfirmation) NeededSize() int {
	return TagSize + StringSize(s.SubscriptionLink) + StringSize(s.PupKey)
}

func (s SubscriptionConfirmation) ToBytes(buf []byte) (int, error) {
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	if _, err := putTag(uint8(SubscriptionConfirm), tagSlice); err != nil {
		return 0, err
	}
	if err := putString(&c, s.SubscriptionLink, buf); err != nil {
		return 0, err
	}
	if err := putString(&c, s.PupKey, buf); err != nil {
		return 0, err
	}
	return c.end, nil
}

func SubscriptionConfirmationFromBytes(buf []byte) (SubscriptionConfirmation, error) {
	var s SubscriptionConfirmation
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return s, err
	}
	tag, err := getTag(tagSlice)
	if err != nil {
		return s, err
	}
	if Confirmation(tag) != SubscriptionConfirm {
		return s, fmt.Errorf("wire: expected SUBSCRIPTION tag, got %s", Confirmation(tag))
	}
	s.SubscriptionLink, err = getString(&c, buf)
	if err != nil {
		return s, err
	}
	s.PupKey, err = getString(&c, buf)
	if err != nil {
		return s, err
	}
	return s, nil
}

// KeyloadRegistrationConfirmation reports the keyload message link once the
// channel author has admitted the subscriber.
type KeyloadRegistrationConfirmation struct {
	KeyloadLink string
}

func (k KeyloadRegistrationConfirmation) NeededSize() int {
	return TagSize + StringSize(k.KeyloadLink)
}

func (k KeyloadRegistrationConfirmation) ToBytes(buf []byte) (int, error) {
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	if _, err := putTag(uint8(KeyloadRegistration), tagSlice); err != nil {
		return 0, err
	}
	if err := putString(&c, k.KeyloadLink, buf); err != nil {
		return 0, err
	}
	return c.end, nil
}

func KeyloadRegistrationConfirmationFromBytes(buf []byte) (KeyloadRegistrationConfirmation, error) {
	var k KeyloadRegistrationConfirmation
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return k, err
	}
	tag, err := getTag(tagSlice)
	if err != nil {
		return k, err
	}
	if Confirmation(tag) != KeyloadRegistration {
		return k, fmt.Errorf("wire: expected KEYLOAD_REGISTRATION tag, got %s", Confirmation(tag))
	}
	k.KeyloadLink, err = getString(&c, buf)
	return k, err
}

// SendMessagesConfirmation carries the links of the messages the sensor
// successfully sent, in send order.
type SendMessagesConfirmation struct {
	MessageLinks []string
}

func (s SendMessagesConfirmation) NeededSize() int {
	size := TagSize + LengthPrefixSize
	for _, l := range s.MessageLinks {
		size += StringSize(l)
	}
	return size
}

func (s SendMessagesConfirmation) ToBytes(buf []byte) (int, error) {
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	if _, err := putTag(uint8(SendMessages), tagSlice); err != nil {
		return 0, err
	}
	c.advance(LengthPrefixSize)
	countSlice, err := c.slice(buf)
	if err != nil {
		return 0, err
	}
	putUint32(countSlice, uint32(len(s.MessageLinks)))
	for _, l := range s.MessageLinks {
		if err := putString(&c, l, buf); err != nil {
			return 0, err
		}
	}
	return c.end, nil
}

func SendMessagesConfirmationFromBytes(buf []byte) (SendMessagesConfirmation, error) {
	var s SendMessagesConfirmation
	c := newCursor(TagSize)
	tagSlice, err := c.slice(buf)
	if err != nil {
		return s, err
	}
	tag, err := getTag(tagSlice)
	if err != nil {
		return s, err
	}
	if Confirmation(tag) != SendMessages {
		return s, fmt.Errorf("wire: expected SEND_MESSAGES tag, got %s", Confirmation(tag))
	}
	c.advance(LengthPrefixSize)
	countSlice, err := c.slice(buf)
	if err != nil {
		return s, err
	}
	count := int(getUint32(countSlice))
	s.MessageLinks = make([]string, 0, count)
	for i := 0; i < count; i++ {
		l, err := getString(&c, buf)
		if err != nil {
			return s, err
		}
		s.MessageLinks = append(s.MessageLinks, l)
	}
	return s, nil
}
