/*
PCI 总线拓扑重建与一致性检查

一、数据来源
 1. 本机 sysfs(默认)。
    每个功能一个目录：
      /sys/bus/pci/devices/0000:00:1f.0/config
    读 config 文件一般需要 root，普通用户只能读前 64 字节，
    标准头正好 64 字节所以被动模式不受影响。

 2. 远端 sysfs(--remote user:pass@host[:port])。
    通过 SFTP 读远端的同一套文件。注意 sysfs 文件上报的
    大小是 0，按大小拷贝的工具(scp)读不到内容，必须用
    ReadAt 定点读。

 3. mock 场景(--mock-scenario simple|multi-domain|broken)。
    在临时目录造一棵假 sysfs 树，没真硬件也能跑全流程。

二、被动模式(list / tree)
 只读标准头，不碰硬件状态：
   $ gopci pci list --filter 0000:00
   $ gopci pci tree --json-file topo.json --dot-file topo.dot
 桥的归属按"包住它主总线号的最窄区间"挂接，
 次级号 > 下属号 的桥会被钳位并告警，exit code 68。

三、主动模式(map)
 逐个可能的地址发探测读，重建每条总线的桥声明表：
   $ gopci pci map --bus 0 --json-file map.json
 校验规则：
   overlap  bug — 同一条次级总线被两座桥声明
   crossing bug — 子桥的 [first,last] 跨出父桥的范围
 在真 sysfs 上探测只能看到内核已经枚举过的设备，
 结论仅供参考，日志里会有提示。

四、退出码
   0  正常
  64  用法错误
  68  断言失败(探测读失败/声明异常/建树警告，聚合计数非零)
  71  SSH/SFTP 失败
  72  设备读写失败
*/
package pci
