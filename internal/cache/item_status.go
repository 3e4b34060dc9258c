package cache

// ItemStatus communicates whether an item is present in a particular cache tier.
type ItemStatus struct {
	Local  bool `json:"local"`
	Remote bool `json:"remote"`
}

// NewCacheMiss returns an ItemStatus indicating the item was not found in any cache tier.
func NewCacheMiss() ItemStatus {
	return ItemStatus{Local: false, Remote: false}
}

// Hit reports whether the item was found in any cache tier.
func (i ItemStatus) Hit() bool {
	return i.Local || i.Remote
}
