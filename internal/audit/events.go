package audit

// Action 审计动作标签
type Action string

// 生命周期迁移
const (
	ActionScheduled      Action = "audit.scheduled"       // 管理员创建审核
	ActionStarted        Action = "audit.started"         // 首次录入，Assigned → In_Progress
	ActionNCOpened       Action = "audit.nc_opened"       // 提出 NC 导致 → NC_Open
	ActionNCCleared      Action = "audit.nc_cleared"      // 最后一个 Open NC 删除，NC_Open → In_Progress
	ActionSubmitted      Action = "audit.submitted"       // 提交给 L2 或进入 NC_Pending_Verify
	ActionApproved       Action = "audit.approved"        // L2 批准
	ActionRejected       Action = "audit.rejected"        // L2 驳回
	ActionStatusOverride Action = "audit.status_override" // 管理员强制设置状态
	ActionRolesAssigned  Action = "audit.roles_assigned"  // 管理员补充指派 L2/责任人
	ActionDeleted        Action = "audit.deleted"         // 管理员删除
)

// 评分与整改
const (
	ActionAnswerScored Action = "answer.scored"
	ActionNCRaised     Action = "nc.raised"
	ActionNCResolved   Action = "nc.resolved"
	ActionNCVerified   Action = "nc.verified"
	ActionNCDeleted    Action = "nc.deleted"
)

// Category 动作分类
type Category string

const (
	CategoryLifecycle Category = "lifecycle"
	CategoryScoring   Category = "scoring"
	CategoryNC        Category = "nc"
	CategoryAdmin     Category = "admin"
)

// CategoryOf 获取动作分类
func CategoryOf(a Action) Category {
	switch a {
	case ActionAnswerScored:
		return CategoryScoring
	case ActionNCRaised, ActionNCResolved, ActionNCVerified, ActionNCDeleted:
		return CategoryNC
	case ActionScheduled, ActionStatusOverride, ActionRolesAssigned, ActionDeleted:
		return CategoryAdmin
	default:
		return CategoryLifecycle
	}
}

var descriptions = map[Action]string{
	ActionScheduled:      "创建审核",
	ActionStarted:        "开始录入",
	ActionNCOpened:       "存在未关闭的不符合项",
	ActionNCCleared:      "不符合项已全部撤回",
	ActionSubmitted:      "提交审核",
	ActionApproved:       "审核通过",
	ActionRejected:       "审核驳回",
	ActionStatusOverride: "管理员调整状态",
	ActionRolesAssigned:  "指派审核角色",
	ActionDeleted:        "删除审核",
	ActionAnswerScored:   "检查项评分",
	ActionNCRaised:       "提出不符合项",
	ActionNCResolved:     "提交整改",
	ActionNCVerified:     "验证关闭不符合项",
	ActionNCDeleted:      "撤回不符合项",
}

// Describe 获取动作描述
func Describe(a Action) string {
	if d, ok := descriptions[a]; ok {
		return d
	}
	return string(a)
}
