package discovery

import (
	"fmt"
	"slices"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *DeviceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyResourceTypes: strings.Join(info.DeviceTypes, ","),
		TXTKeyVersion:       info.Version,
	}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	return txt
}

// DecodeTXT parses TXT records of a SAPI device.
func DecodeTXT(txt TXTRecordMap) (*DeviceInfo, error) {
	rt, ok := txt[TXTKeyResourceTypes]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyResourceTypes)
	}
	ver, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}

	info := &DeviceInfo{Version: ver, Name: txt[TXTKeyName]}
	for _, t := range strings.Split(rt, ",") {
		if t = strings.TrimSpace(t); t != "" {
			info.DeviceTypes = append(info.DeviceTypes, t)
		}
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXT record map to "key=value" strings in
// key order.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+txt[k])
	}
	return out
}

// StringsToTXTRecords parses "key=value" strings. Entries without '=' are
// boolean keys with an empty value.
func StringsToTXTRecords(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k == "" {
			continue
		}
		txt[k] = v
	}
	return txt
}

// instanceName returns name trimmed to a single DNS label.
func instanceName(name string) string {
	if len(name) > MaxInstanceNameLen {
		return name[:MaxInstanceNameLen]
	}
	return name
}
