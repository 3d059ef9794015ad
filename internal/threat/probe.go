package threat

import (
	"context"
	"io/fs"
	"os"
)

// DefaultIndicators are paths whose presence suggests a rooted or
// jailbroken device. They are relative to the filesystem root.
func DefaultIndicators() []string {
	return []string{
		"system/xbin/su",
		"system/bin/su",
		"sbin/su",
		"su/bin/su",
		"data/local/xbin/su",
		"data/local/bin/su",
		"system/app/Superuser.apk",
		"system/xbin/daemonsu",
		"data/adb/magisk",
		"Applications/Cydia.app",
		"Library/MobileSubstrate/MobileSubstrate.dylib",
		"private/var/lib/apt",
	}
}

// PathProbe is a DeviceTrustSource that looks for indicator paths.
type PathProbe struct {
	fsys       fs.FS
	indicators []string
}

// NewPathProbe probes fsys; a nil fsys probes the real root filesystem.
func NewPathProbe(fsys fs.FS, indicators []string) *PathProbe {
	if fsys == nil {
		fsys = os.DirFS("/")
	}
	if len(indicators) == 0 {
		indicators = DefaultIndicators()
	}
	return &PathProbe{fsys: fsys, indicators: indicators}
}

func (p *PathProbe) CheckDevice(ctx context.Context) (Verdict, error) {
	var verdict Verdict
	for _, path := range p.indicators {
		if err := ctx.Err(); err != nil {
			return Verdict{}, err
		}
		if _, err := fs.Stat(p.fsys, path); err == nil {
			verdict.Indicators = append(verdict.Indicators, path)
		}
	}
	verdict.Compromised = len(verdict.Indicators) > 0
	return verdict, nil
}
