package discovery

import (
	"fmt"

	"github.com/ceyewan/routesync/xerrors"
)

// PartialDiscoveryFailure 某个分组扫描失败。只记录日志，不会中断其他分组
type PartialDiscoveryFailure struct {
	Group string
	Cause error
}

func (e *PartialDiscoveryFailure) Error() string {
	return fmt.Sprintf("load services of group %s failed: %v", e.Group, e.Cause)
}

func (e *PartialDiscoveryFailure) Unwrap() error {
	return e.Cause
}

func partial(group string, err error) error {
	return xerrors.WithCode(&PartialDiscoveryFailure{Group: group, Cause: err}, xerrors.CodeDiscoveryPartial)
}
