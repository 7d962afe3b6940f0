// Package docs 接口文档；handler 注释变化后执行 swag init -g cmd/server/main.go -o api/docs 重新生成
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/admin/audits/{id}": {
            "delete": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "存在未关闭不符合项时需要 force=true；审计日志保留",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Admin"
                ],
                "summary": "删除审核",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "boolean",
                        "description": "强制删除",
                        "name": "force",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/admin/audits/{id}/assign": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "只能填写空缺角色，已指派的角色改派为其他人返回 409",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Admin"
                ],
                "summary": "指派 L2 与过程负责人",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "角色",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/lifecycle.AssignRolesRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/admin/audits/{id}/status": {
            "put": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "绕过流程守卫，仅用于纠错，写入 audit.status_override 日志",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Admin"
                ],
                "summary": "强制设置审核状态",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "目标状态",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/audits.SetStatusRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "管理员可见全部审核，其他用户只看到自己担任角色的审核",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "审核列表",
                "parameters": [
                    {
                        "type": "string",
                        "description": "状态",
                        "name": "status",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "对象类型",
                        "name": "target_type",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "页码",
                        "name": "page",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "每页数量",
                        "name": "page_size",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            },
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "创建审核",
                "parameters": [
                    {
                        "description": "审核信息",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/lifecycle.CreateAuditRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "返回审核、模板检查项、全部采集行与不符合项",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "审核详情",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/answers/{ref}": {
            "put": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "按 (审核, 检查项) 幂等保存；首次保存使审核进入 In_Progress",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Capture"
                ],
                "summary": "保存检查项答案",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "检查项ID",
                        "name": "ref",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "答案",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/capture.AnswerInput"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/answers/{ref}/score": {
            "put": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "0 不符合，1 部分符合，2 符合，3 不适用",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "答案评分",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "答案ID",
                        "name": "ref",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "评分",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/scoring.ScoreRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/approve": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "要求全部答案已评分且全部不符合项已关闭",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "批准审核",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/calibrations": {
            "put": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "到期日早于审核计划日期时自动标记并提出不符合项",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Capture"
                ],
                "summary": "保存校准记录",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "校准",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/capture.CalibrationInput"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/compliance": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "NA 不计入分子分母",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "合规率",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/events": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "WebSocket，每条消息为 {audit_id, action, from, to, actor, at}；浏览器可用 access_token 参数传令牌",
                "tags": [
                    "Audits"
                ],
                "summary": "订阅审核状态事件",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "令牌",
                        "name": "access_token",
                        "in": "query"
                    }
                ],
                "responses": {}
            }
        },
        "/api/audits/{id}/logs": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "按发生顺序返回，仅审核参与者与管理员可查看",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "审核审计日志",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "动作",
                        "name": "action",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "起始时间 RFC3339",
                        "name": "from",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "结束时间 RFC3339",
                        "name": "to",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/logs.csv": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "text/csv"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "导出审核审计日志",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "file"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/ncs": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "NonConformances"
                ],
                "summary": "审核下的不符合项",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "状态",
                        "name": "status",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            },
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "审核进入 NC_Open；ref_kind 为 checklist_answer/objective/calibration/parameter/unlinked",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "NonConformances"
                ],
                "summary": "提出不符合项",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "不符合项",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/nonconformance.RaiseRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/objectives": {
            "put": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Capture"
                ],
                "summary": "保存目标值记录",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "目标值",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/capture.ObjectiveInput"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/parameters": {
            "put": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "实测值不满足规格表达式时自动标记并提出不符合项",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Capture"
                ],
                "summary": "保存过程参数记录",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "参数",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/capture.ParameterInput"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/reject": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "清空全部评分，审核回到 Rejected 由 L1 修改",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "驳回审核",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "驳回原因",
                        "name": "request",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/audits.RejectRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/audits/{id}/submit": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "存在未关闭的 Open 不符合项时进入 NC_Pending_Verify，否则进入 Submitted_to_L2",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audits"
                ],
                "summary": "提交审核",
                "parameters": [
                    {
                        "type": "string",
                        "description": "审核ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/evidence": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "返回的 url 可作为 evidence_url 写入答案或不符合项",
                "consumes": [
                    "multipart/form-data"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Evidence"
                ],
                "summary": "上传证据",
                "parameters": [
                    {
                        "type": "file",
                        "description": "证据文件",
                        "name": "file",
                        "in": "formData",
                        "required": true
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/ncs/assigned": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "默认只返回 Open",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "NonConformances"
                ],
                "summary": "我负责的不符合项",
                "parameters": [
                    {
                        "type": "string",
                        "description": "状态",
                        "name": "status",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/ncs/{ncId}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "NonConformances"
                ],
                "summary": "不符合项详情",
                "parameters": [
                    {
                        "type": "string",
                        "description": "不符合项ID",
                        "name": "ncId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            },
            "delete": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "仅 Open 状态可删除；删除最后一个 Open 项时审核回到 In_Progress",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "NonConformances"
                ],
                "summary": "删除不符合项",
                "parameters": [
                    {
                        "type": "string",
                        "description": "不符合项ID",
                        "name": "ncId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/ncs/{ncId}/resolve": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "过程负责人填写原因与纠正措施，Open → Pending_Verification",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "NonConformances"
                ],
                "summary": "提交整改",
                "parameters": [
                    {
                        "type": "string",
                        "description": "不符合项ID",
                        "name": "ncId",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "整改",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/nonconformance.ResolveRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/ncs/{ncId}/verify": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "L1 验证，Pending_Verification → Closed",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "NonConformances"
                ],
                "summary": "验证整改并关闭",
                "parameters": [
                    {
                        "type": "string",
                        "description": "不符合项ID",
                        "name": "ncId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/templates": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Templates"
                ],
                "summary": "模板列表",
                "parameters": [
                    {
                        "type": "string",
                        "description": "模板编码",
                        "name": "code",
                        "in": "query"
                    },
                    {
                        "type": "boolean",
                        "description": "只看已发布",
                        "name": "published_only",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            },
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "同一 code 的版本号自动递增，新版本为草稿",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Templates"
                ],
                "summary": "创建模板版本",
                "parameters": [
                    {
                        "description": "模板",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/template.CreateTemplateRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/templates/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Templates"
                ],
                "summary": "模板详情",
                "parameters": [
                    {
                        "type": "string",
                        "description": "模板ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/templates/{id}/publish": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "发布后检查项不可变，只有已发布版本可用于创建审核",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Templates"
                ],
                "summary": "发布模板版本",
                "parameters": [
                    {
                        "type": "string",
                        "description": "模板ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/api/templates/{id}/questions": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "按分组与序号排列",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Templates"
                ],
                "summary": "模板检查项",
                "parameters": [
                    {
                        "type": "string",
                        "description": "模板ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/common.APIResponse"
                        }
                    }
                }
            }
        },
        "/health": {
            "get": {
                "description": "返回基础健康状态，可供监控探针使用",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "System"
                ],
                "summary": "服务健康检查",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/api.HealthResponse"
                        }
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "description": "数据库不可达时返回 503；Redis 为可选依赖，只报告状态",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "System"
                ],
                "summary": "服务就绪检查",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/api.ReadinessResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/api.ReadinessResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "api.HealthResponse": {
            "type": "object",
            "properties": {
                "service": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                }
            }
        },
        "api.ReadinessResponse": {
            "type": "object",
            "properties": {
                "database": {
                    "type": "string"
                },
                "reason": {
                    "type": "string"
                },
                "redis": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                }
            }
        },
        "audits.RejectRequest": {
            "type": "object",
            "properties": {
                "reason": {
                    "type": "string"
                }
            }
        },
        "audits.SetStatusRequest": {
            "type": "object",
            "required": [
                "reason",
                "status"
            ],
            "properties": {
                "reason": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                }
            }
        },
        "capture.AnswerInput": {
            "type": "object",
            "properties": {
                "evidence_url": {
                    "type": "string"
                },
                "flagged": {
                    "type": "boolean"
                },
                "remarks": {
                    "type": "string"
                },
                "value": {
                    "type": "string"
                }
            }
        },
        "capture.CalibrationInput": {
            "type": "object",
            "required": [
                "instrument_name"
            ],
            "properties": {
                "calibrated_on": {
                    "type": "string"
                },
                "due_on": {
                    "type": "string"
                },
                "flagged": {
                    "type": "boolean"
                },
                "instrument_code": {
                    "type": "string"
                },
                "instrument_name": {
                    "type": "string"
                },
                "remarks": {
                    "type": "string"
                }
            }
        },
        "capture.ObjectiveInput": {
            "type": "object",
            "required": [
                "objective_type",
                "parameter_name"
            ],
            "properties": {
                "actual_value": {
                    "type": "string"
                },
                "flagged": {
                    "type": "boolean"
                },
                "objective_type": {
                    "type": "string"
                },
                "parameter_name": {
                    "type": "string"
                },
                "remarks": {
                    "type": "string"
                },
                "target_value": {
                    "type": "string"
                }
            }
        },
        "capture.ParameterInput": {
            "type": "object",
            "required": [
                "parameter_name"
            ],
            "properties": {
                "actual_value": {
                    "type": "string"
                },
                "flagged": {
                    "type": "boolean"
                },
                "parameter_name": {
                    "type": "string"
                },
                "remarks": {
                    "type": "string"
                },
                "specification": {
                    "type": "string"
                },
                "unit": {
                    "type": "string"
                }
            }
        },
        "common.APIResponse": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "integer",
                    "description": "业务状态码"
                },
                "data": {
                    "description": "响应数据"
                },
                "message": {
                    "type": "string",
                    "description": "提示信息"
                },
                "success": {
                    "type": "boolean",
                    "description": "是否成功"
                }
            }
        },
        "common.ListResponse": {
            "type": "object",
            "properties": {
                "items": {},
                "pagination": {
                    "$ref": "#/definitions/common.PaginationMeta"
                }
            }
        },
        "common.PaginationMeta": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total": {
                    "type": "integer"
                },
                "total_pages": {
                    "type": "integer"
                }
            }
        },
        "lifecycle.AssignRolesRequest": {
            "type": "object",
            "properties": {
                "l2_auditor_id": {
                    "type": "string"
                },
                "process_owner_id": {
                    "type": "string"
                }
            }
        },
        "lifecycle.CreateAuditRequest": {
            "type": "object",
            "required": [
                "l1_auditor_id",
                "scheduled_date",
                "target_ref",
                "target_type",
                "template_id"
            ],
            "properties": {
                "l1_auditor_id": {
                    "type": "string"
                },
                "l2_auditor_id": {
                    "type": "string"
                },
                "metadata": {
                    "type": "object",
                    "additionalProperties": {}
                },
                "operation": {
                    "type": "string"
                },
                "part": {
                    "type": "string"
                },
                "process": {
                    "type": "string"
                },
                "process_owner_id": {
                    "type": "string"
                },
                "scheduled_date": {
                    "type": "string"
                },
                "shift": {
                    "type": "string"
                },
                "target_name": {
                    "type": "string"
                },
                "target_ref": {
                    "type": "string"
                },
                "target_type": {
                    "type": "string",
                    "enum": [
                        "machine",
                        "line",
                        "dock_lot"
                    ]
                },
                "template_id": {
                    "type": "string"
                }
            }
        },
        "nonconformance.RaiseRequest": {
            "type": "object",
            "required": [
                "description"
            ],
            "properties": {
                "description": {
                    "type": "string"
                },
                "evidence_url": {
                    "type": "string"
                },
                "ref_key": {
                    "type": "string"
                },
                "ref_kind": {
                    "type": "string"
                },
                "reference": {
                    "type": "string"
                }
            }
        },
        "nonconformance.ResolveRequest": {
            "type": "object",
            "required": [
                "corrective_action",
                "root_cause"
            ],
            "properties": {
                "corrective_action": {
                    "type": "string"
                },
                "evidence_url": {
                    "type": "string"
                },
                "root_cause": {
                    "type": "string"
                }
            }
        },
        "scoring.ScoreRequest": {
            "type": "object",
            "required": [
                "score"
            ],
            "properties": {
                "remarks": {
                    "type": "string"
                },
                "score": {
                    "type": "integer"
                }
            }
        },
        "template.QuestionInput": {
            "type": "object",
            "required": [
                "text"
            ],
            "properties": {
                "guidance": {
                    "type": "string"
                },
                "mandatory": {
                    "type": "boolean"
                },
                "text": {
                    "type": "string"
                }
            }
        },
        "template.SectionInput": {
            "type": "object",
            "required": [
                "questions",
                "title"
            ],
            "properties": {
                "questions": {
                    "type": "array",
                    "minItems": 1,
                    "items": {
                        "$ref": "#/definitions/template.QuestionInput"
                    }
                },
                "title": {
                    "type": "string"
                }
            }
        },
        "template.CreateTemplateRequest": {
            "type": "object",
            "required": [
                "code",
                "name",
                "sections"
            ],
            "properties": {
                "code": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "sections": {
                    "type": "array",
                    "minItems": 1,
                    "items": {
                        "$ref": "#/definitions/template.SectionInput"
                    }
                },
                "target_type": {
                    "type": "string"
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo 运行时可覆盖 Host 与 BasePath
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "AuditFlow API",
	Description:      "制造现场分层审核：审核生命周期、数据采集、不符合项与 L2 评分",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
